package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

// gatedSink blocks its first delivery until release is closed so tests can
// pile events up behind it.
type gatedSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	batches [][]string
}

func newGatedSink() *gatedSink {
	return &gatedSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedSink) Emit(ctx context.Context, event Event) {
	s.EmitBatch(ctx, []Event{event})
}

func (s *gatedSink) EmitBatch(_ context.Context, events []Event) {
	first := false
	s.once.Do(func() {
		first = true
		close(s.started)
	})
	if first {
		<-s.release
	}
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.EventType
	}
	s.mu.Lock()
	s.batches = append(s.batches, types)
	s.mu.Unlock()
}

func (s *gatedSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

func (s *gatedSink) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the first event")
	}
}

func event(name string) Event {
	return Event{EventType: name, UserID: "u1", Timestamp: time.Unix(1700000000, 0).UTC()}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), event("x"))
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher should report zero")
	}
}

func TestDispatcherBatchesQueuedEvents(t *testing.T) {
	sink := newGatedSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	d.Emit(context.Background(), event("first"))
	sink.waitStarted(t)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), event("queued"))
	}
	close(sink.release)
	d.Close()

	if got := sink.sizes(); !equalInts(got, []int{1, 5}) {
		t.Fatalf("expected batches [1 5], got %v", got)
	}
	if d.Delivered() != 6 {
		t.Fatalf("expected 6 delivered, got %d", d.Delivered())
	}
}

func TestDispatcherRespectsMaxBatch(t *testing.T) {
	sink := newGatedSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16, MaxBatch: 2}, sink)

	d.Emit(context.Background(), event("first"))
	sink.waitStarted(t)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), event("queued"))
	}
	close(sink.release)
	d.Close()

	if got := sink.sizes(); !equalInts(got, []int{1, 2, 2, 1}) {
		t.Fatalf("expected batches [1 2 2 1], got %v", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := newGatedSink()
	var dropped []string
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		OnDrop:     func(ev Event) { dropped = append(dropped, ev.EventType) },
	}, sink)

	d.Emit(context.Background(), event("first"))
	sink.waitStarted(t)
	d.Emit(context.Background(), event("second"))
	d.Emit(context.Background(), event("third"))

	close(sink.release)
	d.Close()

	if d.Dropped() != 1 || len(dropped) != 1 || dropped[0] != "third" {
		t.Fatalf("expected third to be dropped, got %d %v", d.Dropped(), dropped)
	}
	if d.Delivered() != 2 {
		t.Fatalf("expected 2 delivered, got %d", d.Delivered())
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := newGatedSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), event("first"))
	sink.waitStarted(t)
	d.Emit(context.Background(), event("second"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, event("third"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit ignored a cancelled context")
	}

	close(sink.release)
	d.Close()
	if d.Delivered() != 2 || d.Dropped() != 0 {
		t.Fatalf("expected 2 delivered and 0 dropped, got %d %d", d.Delivered(), d.Dropped())
	}
}

func TestDispatcherIgnoresEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), event("before"))
	d.Close()
	d.Close()
	d.Emit(context.Background(), event("after"))

	if d.Delivered() != 1 {
		t.Fatalf("expected 1 delivered, got %d", d.Delivered())
	}
	if ev := <-sink.Events(); ev.EventType != "before" {
		t.Fatalf("unexpected event %q", ev.EventType)
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event after close: %q", ev.EventType)
	default:
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "mfa_verify_success", UserID: "u1", Kind: "totp", Success: true})
	sink.EmitBatch(context.Background(), []Event{event("a"), event("b")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != "mfa_verify_success" || got.Kind != "totp" || !got.Success {
		t.Fatalf("unexpected event %+v", got)
	}
	if strings.Contains(lines[0], "metadata") || strings.Contains(lines[0], `"ip"`) {
		t.Fatalf("empty fields should be omitted: %s", lines[0])
	}
	if sink.Failures() != 0 {
		t.Fatalf("unexpected failures %d", sink.Failures())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	plain := NewChannelSink(4)
	batch := newGatedSink()
	close(batch.release)

	m := MultiSink{plain, nil, batch}
	m.EmitBatch(context.Background(), []Event{event("a"), event("b")})
	m.Emit(context.Background(), event("c"))

	for _, want := range []string{"a", "b", "c"} {
		if ev := <-plain.Events(); ev.EventType != want {
			t.Fatalf("expected %q, got %q", want, ev.EventType)
		}
	}
	if got := batch.sizes(); !equalInts(got, []int{2, 1}) {
		t.Fatalf("expected batch sizes [2 1], got %v", got)
	}
}

type recordingWriter struct {
	calls [][]kafka.Message
	err   error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls = append(w.calls, msgs)
	return w.err
}

func TestKafkaSinkWritesBatchInOneCall(t *testing.T) {
	w := &recordingWriter{}
	sink := NewKafkaSink(w, time.Second, nil)

	sink.EmitBatch(context.Background(), []Event{
		{EventType: "mfa_verify_failure", UserID: "u1"},
		{EventType: "mfa_locked_out", UserID: "u2"},
	})

	if len(w.calls) != 1 || len(w.calls[0]) != 2 {
		t.Fatalf("expected one call with 2 messages, got %v", w.calls)
	}
	msg := w.calls[0][1]
	if string(msg.Key) != "u2" {
		t.Fatalf("expected key u2, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "mfa_locked_out" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil || decoded.EventType != "mfa_locked_out" {
		t.Fatalf("unexpected value %s (%v)", msg.Value, err)
	}
}

func TestKafkaSinkReportsFailures(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	var failed []string
	sink := NewKafkaSink(w, time.Second, func(ev Event, err error) {
		failed = append(failed, ev.EventType)
	})

	sink.EmitBatch(context.Background(), []Event{event("a"), event("b")})
	sink.Emit(context.Background(), event("c"))

	if strings.Join(failed, ",") != "a,b,c" {
		t.Fatalf("expected every event reported, got %v", failed)
	}
	if len(w.calls) != 2 {
		t.Fatalf("expected 2 write calls, got %d", len(w.calls))
	}
}
