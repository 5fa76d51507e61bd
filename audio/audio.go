package audio

import (
	"strings"
	"time"
)

const (
	DefaultSampleRate    = 16000
	DefaultChannels      = 1
	DefaultBlockDuration = 500 * time.Millisecond
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives interleaved signed 16-bit samples from the driver
// thread. The slice is only valid for the duration of the call.
type DataCallback func(samples []int16)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	// BlockFrames is a hint for the driver period size. Drivers may deliver
	// any buffer length; Framer restores exact block boundaries.
	BlockFrames uint32
}

// BlockFrames returns the number of frames in one block of duration d.
func BlockFrames(sampleRate uint32, d time.Duration) uint32 {
	return uint32(time.Duration(sampleRate) * d / time.Second)
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
