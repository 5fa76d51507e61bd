//go:build darwin

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"hark/audio"
)

const (
	playChannels = 1
	// CoreAudio adds its own tail, so the tones are shorter here.
	startDuration = 0.03
	endDuration   = 0.05
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// Playback state, read from the device callback.
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = playChannels
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initPlayer() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		malgoCtx = nil
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func dataCallback(out, _ []byte, frameCount uint32) {
	want := frameCount * 2 * playChannels
	samples := current.Load()
	n := uint32(0)
	if samples != nil {
		p := pos.Load()
		n = min(want, uint32(len(*samples))-p)
		copy(out[:n], (*samples)[p:p+n])
		pos.Store(p + n)
		if n == 0 {
			current.Store(nil)
		}
	}
	clear(out[n:want])
}

func play(samples []int16) {
	if malgoCtx == nil || len(samples) == 0 {
		return
	}
	data := audio.Bytes(samples)

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}

	device.Stop()
	pos.Store(0)
	current.Store(&data)

	if err := device.Start(); err != nil {
		// Recreate the device once; macOS invalidates it across sleep.
		device.Uninit()
		if err := initDevice(); err != nil {
			current.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			current.Store(nil)
		}
	}
}
