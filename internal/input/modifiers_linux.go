//go:build linux

package input

import (
	"golang.design/x/hotkey"

	"snaplock/internal/shortcut"
)

// Alt is Mod1 and Super/Win is Mod4 under X11.
var modifierMap = map[shortcut.Modifier]hotkey.Modifier{
	shortcut.ModCtrl:  hotkey.ModCtrl,
	shortcut.ModShift: hotkey.ModShift,
	shortcut.ModAlt:   hotkey.Mod1,
	shortcut.ModMeta:  hotkey.Mod4,
}
