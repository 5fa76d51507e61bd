package hotkey

import (
	"fmt"
	"sync"

	"github.com/eiannone/keyboard"
)

// Terminal reads Enter or Space from the controlling terminal as the hotkey.
// Terminals have no key release, so every press is followed by an
// immediate release. Esc, q and Ctrl+C close Quit.
type Terminal struct {
	keydown chan struct{}
	keyup   chan struct{}
	quit    chan struct{}

	stop     chan struct{}
	once     sync.Once
	quitOnce sync.Once
}

func NewTerminal() *Terminal {
	return &Terminal{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

func (t *Terminal) Register() error {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return fmt.Errorf("opening terminal keyboard: %w", err)
	}
	go t.read(keys)
	return nil
}

func (t *Terminal) read(keys <-chan keyboard.KeyEvent) {
	for {
		select {
		case <-t.stop:
			return
		case ev, ok := <-keys:
			if !ok {
				t.closeQuit()
				return
			}
			if ev.Err != nil {
				continue
			}
			switch {
			case ev.Key == keyboard.KeyEnter || ev.Key == keyboard.KeySpace:
				t.press()
			case ev.Key == keyboard.KeyEsc || ev.Key == keyboard.KeyCtrlC || ev.Rune == 'q':
				t.closeQuit()
				return
			}
		}
	}
}

func (t *Terminal) press() {
	select {
	case t.keydown <- struct{}{}:
	case <-t.stop:
		return
	}
	select {
	case t.keyup <- struct{}{}:
	case <-t.stop:
	}
}

func (t *Terminal) closeQuit() {
	t.quitOnce.Do(func() { close(t.quit) })
}

func (t *Terminal) Unregister() {
	t.once.Do(func() {
		close(t.stop)
		keyboard.Close()
	})
}

func (t *Terminal) Keydown() <-chan struct{} { return t.keydown }
func (t *Terminal) Keyup() <-chan struct{}   { return t.keyup }

// Quit is closed when the user asks to exit.
func (t *Terminal) Quit() <-chan struct{} { return t.quit }
