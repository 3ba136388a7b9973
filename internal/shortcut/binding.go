// Package shortcut parses, validates and serializes global-hotkey bindings.
package shortcut

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidShortcut is returned when a spec or captured combination does not
// form a valid binding (missing modifier, missing main key, unknown token).
var ErrInvalidShortcut = errors.New("invalid shortcut")

// Modifier is a bitmask of modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModMeta
)

// modifierOrder is the canonical serialization order. Equality between
// bindings is order-insensitive; storage is not.
var modifierOrder = [...]struct {
	mod  Modifier
	name string
}{
	{ModCtrl, "Ctrl"},
	{ModAlt, "Alt"},
	{ModShift, "Shift"},
	{ModMeta, "Meta"},
}

var modifierByName = map[string]Modifier{
	"CTRL":    ModCtrl,
	"CONTROL": ModCtrl,
	"ALT":     ModAlt,
	"SHIFT":   ModShift,
	"META":    ModMeta,
	"CMD":     ModMeta,
	"SUPER":   ModMeta,
	"WIN":     ModMeta,
}

// namedKeys maps upper-cased aliases of non-printable main keys to their
// canonical serialized form.
var namedKeys = map[string]string{
	"SPACE":     "Space",
	" ":         "Space",
	"TAB":       "Tab",
	"ENTER":     "Enter",
	"RETURN":    "Enter",
	"ESC":       "Esc",
	"ESCAPE":    "Esc",
	"DELETE":    "Delete",
	"BACKSPACE": "Backspace",
	"LEFT":      "Left",
	"RIGHT":     "Right",
	"UP":        "Up",
	"DOWN":      "Down",
	"HOME":      "Home",
	"END":       "End",
	"PAGEUP":    "PageUp",
	"PAGEDOWN":  "PageDown",
}

// Binding describes a parsed global hotkey: at least one modifier plus
// exactly one non-modifier main key.
// Construct only via Parse or FromCapture to guarantee invariant consistency.
type Binding struct {
	modifiers  Modifier
	key        string
	normalized string
}

// Modifiers returns the modifier bitmask.
func (b Binding) Modifiers() Modifier { return b.modifiers }

// Key returns the canonical main-key token.
func (b Binding) Key() string { return b.key }

// String returns the canonical serialized binding, with modifiers in the
// fixed order Ctrl, Alt, Shift, Meta.
func (b Binding) String() string { return b.normalized }

// IsZero reports whether b is the zero value (no binding).
func (b Binding) IsZero() bool { return b.normalized == "" }

// Equal reports whether two bindings describe the same key combination.
// Modifier order in the original spec strings is irrelevant.
func (b Binding) Equal(other Binding) bool { return b.normalized == other.normalized }

// Parse parses a binding spec like "Ctrl+Alt+L". The spec must split into at
// least two '+'-separated tokens: every token but the last a modifier, the
// last a non-empty non-modifier main key. Duplicate modifiers collapse.
func Parse(spec string) (Binding, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Binding{}, fmt.Errorf("%w: empty spec", ErrInvalidShortcut)
	}

	parts := strings.Split(raw, "+")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("%w: %q has no modifier", ErrInvalidShortcut, raw)
	}

	var mods Modifier
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Binding{}, fmt.Errorf("%w: unknown modifier %q in %q", ErrInvalidShortcut, token, raw)
		}
		mods |= mod
	}

	key, err := normalizeKey(parts[len(parts)-1])
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %v in %q", ErrInvalidShortcut, err, raw)
	}

	return build(mods, key), nil
}

// FromCapture assembles a binding from an accumulated modifier mask and a
// main-key token, as produced by a capture session.
func FromCapture(mods Modifier, key string) (Binding, error) {
	if mods == 0 {
		return Binding{}, fmt.Errorf("%w: at least one modifier is required", ErrInvalidShortcut)
	}
	normalized, err := normalizeKey(key)
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %v", ErrInvalidShortcut, err)
	}
	return build(mods, normalized), nil
}

// Validate reports whether spec parses into a well-formed binding.
func Validate(spec string) bool {
	_, err := Parse(spec)
	return err == nil
}

// IsModifierToken reports whether token names a modifier key.
func IsModifierToken(token string) bool {
	_, ok := modifierByName[strings.ToUpper(strings.TrimSpace(token))]
	return ok
}

func build(mods Modifier, key string) Binding {
	var tokens []string
	for _, entry := range modifierOrder {
		if mods&entry.mod != 0 {
			tokens = append(tokens, entry.name)
		}
	}
	tokens = append(tokens, key)
	return Binding{
		modifiers:  mods,
		key:        key,
		normalized: strings.Join(tokens, "+"),
	}
}

// normalizeKey canonicalizes a main-key token: single printable characters
// are upper-cased, the space key becomes the literal "Space" token, known
// named keys take their canonical casing. The token must not itself be a
// modifier.
func normalizeKey(raw string) (string, error) {
	token := raw
	if token != " " {
		token = strings.TrimSpace(token)
	}
	if token == "" {
		return "", errors.New("missing main key")
	}
	if IsModifierToken(token) {
		return "", fmt.Errorf("main key %q is a modifier", token)
	}

	upper := strings.ToUpper(token)
	if named, ok := namedKeys[upper]; ok {
		return named, nil
	}
	if len([]rune(token)) == 1 {
		return strings.ToUpper(token), nil
	}
	// Function keys and other multi-character tokens keep upper-case form
	// ("f12" -> "F12"), matching the registration tables.
	return upper, nil
}
