package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Clip is a decoded recording, interleaved.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Mono returns the clip down-mixed to one channel at the given rate.
func (c *Clip) Mono(rate int) ([]int16, error) {
	mono := Downmix(c.Samples, c.Channels)
	if c.SampleRate == rate {
		return mono, nil
	}
	return Resample(mono, c.SampleRate, rate)
}

func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// IsWAV sniffs a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func DecodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrUnsupportedFormat
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil, ErrUnsupportedFormat
	}
	samples, err := toInt16(buf, int(d.BitDepth))
	if err != nil {
		return nil, err
	}
	return &Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

func DecodeWAVBytes(data []byte) (*Clip, error) {
	return DecodeWAV(bytes.NewReader(data))
}

func LoadWAV(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeWAV(f)
}

func toInt16(buf *goaudio.IntBuffer, depth int) ([]int16, error) {
	out := make([]int16, len(buf.Data))
	switch depth {
	case 8:
		for i, v := range buf.Data {
			out[i] = int16((v - 128) << 8)
		}
	case 16:
		for i, v := range buf.Data {
			out[i] = int16(v)
		}
	case 24:
		for i, v := range buf.Data {
			out[i] = int16(v >> 8)
		}
	case 32:
		for i, v := range buf.Data {
			out[i] = int16(v >> 16)
		}
	default:
		return nil, fmt.Errorf("%w: %d-bit wav", ErrUnsupportedFormat, depth)
	}
	return out, nil
}
