package sink

import (
	"context"

	"hark/log"
)

// TranscriptLog appends every message to transcribe_log.txt.
type TranscriptLog struct{}

func (TranscriptLog) Name() string { return "transcript_log" }

func (TranscriptLog) Publish(_ context.Context, r Record) error {
	log.TranscriptionText(r.Message)
	return nil
}
