package input

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"

	"snaplock/internal/shortcut"
)

// HotkeyHandle is one live global-hotkey registration.
type HotkeyHandle struct {
	binding shortcut.Binding
	hk      *hotkey.Hotkey
	done    chan struct{}
	once    sync.Once
}

// Binding returns the bound key combination.
func (h *HotkeyHandle) Binding() shortcut.Binding { return h.binding }

// RegisterHotkey implements Watcher. The previous handle must be
// unregistered first; stacking registrations is refused.
func (w *SystemWatcher) RegisterHotkey(binding shortcut.Binding, onTrigger func()) (*HotkeyHandle, error) {
	if onTrigger == nil {
		return nil, fmt.Errorf("%w: onTrigger callback is required", ErrHotkeyRegistration)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active != nil {
		return nil, ErrHotkeyActive
	}

	mods, err := platformModifiers(binding.Modifiers())
	if err != nil {
		return nil, err
	}
	key, ok := keyByToken[binding.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKey, binding.Key())
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrHotkeyRegistration, binding, err)
	}

	handle := &HotkeyHandle{
		binding: binding,
		hk:      hk,
		done:    make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-handle.done:
				return
			case <-hk.Keydown():
				// The chord keys are about to be observed by the raw
				// listener; open the suppression window before the
				// callback can change monitoring state.
				w.markHotkeyActivity()
				onTrigger()
			}
		}
	}()

	w.active = handle
	slog.Info("[input] global hotkey registered", "binding", binding.String())
	return handle, nil
}

// UnregisterHotkey implements Watcher. Unregistering an already-released or
// foreign handle is a no-op.
func (w *SystemWatcher) UnregisterHotkey(h *HotkeyHandle) error {
	if h == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		close(h.done)
		err = h.hk.Unregister()

		w.mu.Lock()
		if w.active == h {
			w.active = nil
		}
		w.mu.Unlock()
		slog.Info("[input] global hotkey unregistered", "binding", h.binding.String())
	})
	return err
}

// platformModifiers translates the codec's modifier mask into the OS hotkey
// modifier list via the per-platform map.
func platformModifiers(mods shortcut.Modifier) ([]hotkey.Modifier, error) {
	var out []hotkey.Modifier
	for _, m := range []shortcut.Modifier{shortcut.ModCtrl, shortcut.ModAlt, shortcut.ModShift, shortcut.ModMeta} {
		if mods&m == 0 {
			continue
		}
		hm, ok := modifierMap[m]
		if !ok {
			return nil, fmt.Errorf("%w: modifier %v not available on this platform", ErrHotkeyRegistration, m)
		}
		out = append(out, hm)
	}
	return out, nil
}

// keyByToken maps canonical main-key tokens to OS hotkey keys. Tokens absent
// here cannot be bound as a global hotkey even though the codec accepts them.
var keyByToken = buildKeyTable()

func buildKeyTable() map[string]hotkey.Key {
	table := map[string]hotkey.Key{
		"Space":  hotkey.KeySpace,
		"Tab":    hotkey.KeyTab,
		"Enter":  hotkey.KeyReturn,
		"Esc":    hotkey.KeyEscape,
		"Delete": hotkey.KeyDelete,
		"Left":   hotkey.KeyLeft,
		"Right":  hotkey.KeyRight,
		"Up":     hotkey.KeyUp,
		"Down":   hotkey.KeyDown,
		"F1":     hotkey.KeyF1,
		"F2":     hotkey.KeyF2,
		"F3":     hotkey.KeyF3,
		"F4":     hotkey.KeyF4,
		"F5":     hotkey.KeyF5,
		"F6":     hotkey.KeyF6,
		"F7":     hotkey.KeyF7,
		"F8":     hotkey.KeyF8,
		"F9":     hotkey.KeyF9,
		"F10":    hotkey.KeyF10,
		"F11":    hotkey.KeyF11,
		"F12":    hotkey.KeyF12,
	}
	letters := []struct {
		token string
		key   hotkey.Key
	}{
		{"A", hotkey.KeyA}, {"B", hotkey.KeyB}, {"C", hotkey.KeyC},
		{"D", hotkey.KeyD}, {"E", hotkey.KeyE}, {"F", hotkey.KeyF},
		{"G", hotkey.KeyG}, {"H", hotkey.KeyH}, {"I", hotkey.KeyI},
		{"J", hotkey.KeyJ}, {"K", hotkey.KeyK}, {"L", hotkey.KeyL},
		{"M", hotkey.KeyM}, {"N", hotkey.KeyN}, {"O", hotkey.KeyO},
		{"P", hotkey.KeyP}, {"Q", hotkey.KeyQ}, {"R", hotkey.KeyR},
		{"S", hotkey.KeyS}, {"T", hotkey.KeyT}, {"U", hotkey.KeyU},
		{"V", hotkey.KeyV}, {"W", hotkey.KeyW}, {"X", hotkey.KeyX},
		{"Y", hotkey.KeyY}, {"Z", hotkey.KeyZ},
	}
	for _, l := range letters {
		table[l.token] = l.key
	}
	digits := []struct {
		token string
		key   hotkey.Key
	}{
		{"0", hotkey.Key0}, {"1", hotkey.Key1}, {"2", hotkey.Key2},
		{"3", hotkey.Key3}, {"4", hotkey.Key4}, {"5", hotkey.Key5},
		{"6", hotkey.Key6}, {"7", hotkey.Key7}, {"8", hotkey.Key8},
		{"9", hotkey.Key9},
	}
	for _, d := range digits {
		table[d.token] = d.key
	}
	return table
}
