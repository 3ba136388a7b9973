//go:build darwin

package input

import (
	"golang.design/x/hotkey"

	"snaplock/internal/shortcut"
)

var modifierMap = map[shortcut.Modifier]hotkey.Modifier{
	shortcut.ModCtrl:  hotkey.ModCtrl,
	shortcut.ModShift: hotkey.ModShift,
	shortcut.ModAlt:   hotkey.ModOption,
	shortcut.ModMeta:  hotkey.ModCmd,
}
