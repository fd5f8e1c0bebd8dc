package console

import "github.com/gdamore/tcell/v2"

// KeyKind classifies terminal input the console reacts to.
type KeyKind int

const (
	KeyRune KeyKind = iota
	KeyEnter
	KeyBackspace
	KeyLeft
	KeyRight
	KeyFocusIn
	KeyFocusOut
	// KeyBlocked is a signal shortcut swallowed by raw mode.
	KeyBlocked
)

// Key is one translated input event.
type Key struct {
	Kind KeyKind
	Rune rune
	Name string
}

// blockedKeys are the control keys that would stop or suspend the client
// outside raw mode.
var blockedKeys = map[tcell.Key]string{
	tcell.KeyCtrlC:         "Ctrl+C",
	tcell.KeyCtrlZ:         "Ctrl+Z",
	tcell.KeyCtrlBackslash: `Ctrl+\`,
	tcell.KeyCtrlD:         "Ctrl+D",
}

// translate maps a tcell event onto a console Key. Events the console does
// not handle (mouse, paste, other function keys) report false.
func translate(ev tcell.Event) (Key, bool) {
	switch ev := ev.(type) {
	case *tcell.EventFocus:
		if ev.Focused {
			return Key{Kind: KeyFocusIn}, true
		}
		return Key{Kind: KeyFocusOut}, true

	case *tcell.EventKey:
		if name, ok := blockedKeys[ev.Key()]; ok {
			return Key{Kind: KeyBlocked, Name: name}, true
		}
		switch ev.Key() {
		case tcell.KeyRune:
			return Key{Kind: KeyRune, Rune: ev.Rune()}, true
		case tcell.KeyEnter:
			return Key{Kind: KeyEnter}, true
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			return Key{Kind: KeyBackspace}, true
		case tcell.KeyLeft:
			if ev.Modifiers() == tcell.ModNone {
				return Key{Kind: KeyLeft}, true
			}
		case tcell.KeyRight:
			if ev.Modifiers() == tcell.ModNone {
				return Key{Kind: KeyRight}, true
			}
		}
	}
	return Key{}, false
}
