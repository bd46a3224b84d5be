// Package hotkey listens for the global Ctrl+Shift+Space combination.
package hotkey

// Hotkey delivers press and release of one key combination.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// signal delivers one event without blocking; a pending event absorbs it.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
