package hotkey

// Hotkey reports presses and releases of one key or key combination.
type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is the global key combination registered by New.
const Combo = "Ctrl+Shift+Space"

// notify sends without blocking; a pending signal already covers this one.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
