package encoder

import "fmt"

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

const (
	FormatFLAC = "flac"
	FormatWAV  = "wav"
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	Format() string
}

func New(format string, sampleRate int) (Encoder, error) {
	switch format {
	case FormatFLAC, "":
		return NewFlac(sampleRate)
	case FormatWAV:
		return NewWav(sampleRate)
	default:
		return nil, fmt.Errorf("unknown encoding %q", format)
	}
}

// Encode runs samples through a fresh encoder in BlockSize chunks.
func Encode(format string, sampleRate int, samples []int16) ([]byte, error) {
	enc, err := New(format, sampleRate)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// ContentType returns the MIME type used when uploading format.
func ContentType(format string) string {
	switch format {
	case FormatWAV:
		return "audio/wav"
	default:
		return "audio/flac"
	}
}
