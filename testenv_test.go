package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"hark/hotkey"
)

func TestDriverCommands(t *testing.T) {
	hk := hotkey.NewFake()
	done := make(chan struct{}, 1)
	done <- struct{}{}
	d := &testDriver{hk: hk, done: done}

	in := strings.NewReader("KEYDOWN\nKEYUP\nWAIT\nSLEEP 5\nBOGUS\n\nQUIT\nKEYDOWN\n")
	finished := make(chan struct{})
	go func() {
		d.run(context.Background(), in)
		close(finished)
	}()

	for _, ch := range []<-chan struct{}{hk.Keydown(), hk.Keyup()} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("key event not delivered")
		}
	}
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop on QUIT")
	}
	select {
	case <-hk.Keydown():
		t.Error("command after QUIT was executed")
	default:
	}
}

func TestDriverStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	d := &testDriver{hk: hotkey.NewFake(), done: make(chan struct{})}
	finished := make(chan struct{})
	go func() {
		d.run(ctx, r)
		close(finished)
	}()

	// Blocks in WAIT until cancelled.
	if _, err := io.WriteString(w, "WAIT\n"); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop on cancel")
	}
}

func TestDriverStopsAtEOF(t *testing.T) {
	d := &testDriver{hk: hotkey.NewFake(), done: make(chan struct{})}
	finished := make(chan struct{})
	go func() {
		d.run(context.Background(), strings.NewReader(""))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop at end of input")
	}
}
