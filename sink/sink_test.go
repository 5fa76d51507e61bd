package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"hark/actions"
	"hark/metrics"
)

func TestNewRecordID(t *testing.T) {
	at := time.Unix(1700000000, 250_000_000)
	r := NewRecord("hello", at, nil)
	if r.ID != 1700000000.25 {
		t.Errorf("ID = %v, want 1700000000.25", r.ID)
	}
}

func TestRecordJSON(t *testing.T) {
	r := Record{ID: 1.5, Message: "hi"}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"id":1.5,"message":"hi"}` {
		t.Errorf("json = %s", data)
	}

	r.Actions = []actions.Action{{Type: actions.Suggestion, Text: "cache it"}}
	data, _ = json.Marshal(r)
	if !strings.Contains(string(data), `"actions":[{"type":"suggestion","text":"cache it"}]`) {
		t.Errorf("json = %s", data)
	}
}

func TestFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "public", "actions.json")
	f := NewFile(path)

	for _, msg := range []string{"first", "second"} {
		if err := f.Publish(context.Background(), Record{ID: 1, Message: msg}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("file is not JSON: %v", err)
	}
	if got.Message != "second" {
		t.Errorf("Message = %q, want second", got.Message)
	}
	if !strings.Contains(string(data), "\n  \"message\"") {
		t.Errorf("expected 2-space indent, got %q", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only actions.json", len(entries))
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	m := metrics.New()
	var got []string
	ok := Func{ID: "ok", Fn: func(_ context.Context, r Record) error {
		got = append(got, r.Message)
		return nil
	}}
	bad := Func{ID: "bad", Fn: func(context.Context, Record) error { return errors.New("disk full") }}

	multi := NewMulti(m, bad, ok)
	err := multi.Publish(context.Background(), Record{Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "bad: disk full") {
		t.Errorf("err = %v", err)
	}
	if len(got) != 1 {
		t.Error("failing sink stopped the others")
	}
	if v := testutil.ToFloat64(m.SinkErrors.WithLabelValues("bad")); v != 1 {
		t.Errorf("sink errors = %v, want 1", v)
	}
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish(context.Background(), Record{Message: "one"})
	if r := <-a; r.Message != "one" {
		t.Errorf("a got %q", r.Message)
	}
	if r := <-b; r.Message != "one" {
		t.Errorf("b got %q", r.Message)
	}

	cancelA()
	cancelA()
	if _, open := <-a; open {
		t.Error("cancelled channel still open")
	}
	if h.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", h.Subscribers())
	}
	last, ok := h.Last()
	if !ok || last.Message != "one" {
		t.Errorf("Last = %+v %v", last, ok)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe()
	defer cancel()

	for range subscriberBuffer + 3 {
		if err := h.Publish(context.Background(), Record{}); err != nil {
			t.Fatal(err)
		}
	}
	if h.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", h.Dropped())
	}
}
