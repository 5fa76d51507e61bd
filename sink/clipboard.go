package sink

import (
	"context"

	"github.com/atotto/clipboard"
)

// Clipboard copies the transcript text to the system clipboard.
type Clipboard struct{}

func (Clipboard) Name() string { return "clipboard" }

func (Clipboard) Publish(_ context.Context, r Record) error {
	if clipboard.Unsupported {
		return nil
	}
	return clipboard.WriteAll(r.Message)
}
