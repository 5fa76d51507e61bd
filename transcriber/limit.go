package transcriber

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limited bounds how many calls run against one shared Transcriber. The live
// pipeline and the upload endpoint both go through it.
type Limited struct {
	Transcriber
	sem *semaphore.Weighted
}

func Limit(t Transcriber, n int) *Limited {
	if n <= 0 {
		n = 1
	}
	return &Limited{Transcriber: t, sem: semaphore.NewWeighted(int64(n))}
}

func (l *Limited) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.Transcriber.Transcribe(ctx, req)
}

func (l *Limited) TranscribeFile(ctx context.Context, f File, language string) (*Result, error) {
	ft, ok := l.Transcriber.(FileTranscriber)
	if !ok {
		return nil, ErrUnsupported
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return ft.TranscribeFile(ctx, f, language)
}

func (l *Limited) AcceptsFiles() bool { return AcceptsFiles(l.Transcriber) }

func (l *Limited) Warm() { Warm(l.Transcriber) }
