//go:build !whisper

package transcriber

import "errors"

// NewWhisper fails in builds without the whisper tag; the local provider
// needs cgo and libwhisper.
func NewWhisper(string) (Transcriber, error) {
	return nil, errors.New("whisper provider not compiled in (build with -tags whisper)")
}
