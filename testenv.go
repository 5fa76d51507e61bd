package main

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"hark/audio"
	"hark/hotkey"
	"hark/log"
)

// testDriver feeds stdin commands to a fake hotkey so the whole pipeline
// can be exercised headless:
//
//	KEYDOWN / KEYUP   press or release the hotkey
//	TOGGLE            press and release
//	WAIT              block until the next utterance is finalized
//	WAIT_AUDIO_DONE   block until the recording has been played out
//	SLEEP <ms>
//	QUIT
type testDriver struct {
	hk      *hotkey.FakeHotkey
	capture *audio.FakeCapture
	done    <-chan struct{}
}

// run returns on QUIT, at end of input or when ctx is cancelled.
func (d *testDriver) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	wait := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var cmd string
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd = line
		}

		log.Debugf("test command: %s", cmd)
		switch {
		case cmd == "KEYDOWN":
			d.hk.SimKeydown()
		case cmd == "KEYUP":
			d.hk.SimKeyup()
		case cmd == "TOGGLE":
			d.hk.SimTap()
		case cmd == "WAIT":
			if !wait(d.done) {
				return
			}
		case cmd == "WAIT_AUDIO_DONE":
			if d.capture != nil && !wait(d.capture.AudioDone()) {
				return
			}
		case cmd == "QUIT":
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(strings.TrimSpace(cmd[6:])); err == nil {
				select {
				case <-time.After(time.Duration(ms) * time.Millisecond):
				case <-ctx.Done():
					return
				}
			}
		case cmd == "":
		default:
			log.Warnf("unknown test command %q", cmd)
		}
	}
}
