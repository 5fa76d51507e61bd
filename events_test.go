package main

import (
	"context"
	"testing"
	"time"
)

func TestToggleNotLostWhenBacklogFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan struct{}, 1)
	toggle := newToggle(ctx, ch)

	toggle()
	toggle()
	toggle()

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("got %d toggles, want 3", i)
		}
	}
}
