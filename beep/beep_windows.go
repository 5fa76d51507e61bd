//go:build windows

package beep

// No audio playback on Windows; beeps are silent.

const (
	playChannels  = 1
	startDuration = 0.03
	endDuration   = 0.05
)

func initPlayer()    {}
func play(_ []int16) {}
