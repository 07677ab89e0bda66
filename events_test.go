package sessionkit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aification/sessionkit/api"
	"github.com/aification/sessionkit/storage"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, SessionEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(ctx context.Context, _ SessionEvent) {
	select {
	case <-s.gate:
	case <-ctx.Done():
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func collectEvents(t *testing.T, sink *ChannelSink, n int) []SessionEvent {
	t.Helper()
	events := make([]SessionEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("expected %d events, got %d", n, len(events))
		}
	}
	return events
}

func TestEventsDisabledNoDispatcher(t *testing.T) {
	if d := newEventDispatcher(EventsConfig{Enabled: false}, &countingSink{}); d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	if d := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 4}, nil); d != nil {
		t.Fatal("expected nil dispatcher without a sink")
	}
}

func TestStoreEmitsSessionEvents(t *testing.T) {
	st := storage.NewMemoryBackend().Open()
	sink := NewChannelSink(16)
	pf := profilesByToken(map[string]api.Profile{"secret-token": {Email: "a@b.com", Auth: "local"}})
	s := newTestStore(t, st, pf, func(b *Builder) { b.WithEventSink(sink) })

	if _, err := s.SignIn(context.Background(), "secret-token"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	events := collectEvents(t, sink, 3)
	wantTypes := []string{EventHydrated, EventSignedIn, EventSignedOut}
	for i, ev := range events {
		if ev.EventType != wantTypes[i] {
			t.Fatalf("event %d: expected %s, got %s", i, wantTypes[i], ev.EventType)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("event %d: missing timestamp", i)
		}
		if strings.Contains(ev.Error, "secret-token") {
			t.Fatal("token leaked into event error")
		}
		for k, v := range ev.Metadata {
			if strings.Contains(k, "secret-token") || strings.Contains(v, "secret-token") {
				t.Fatal("token leaked into event metadata")
			}
		}
	}
	if events[1].Email != "a@b.com" || !events[1].Success {
		t.Fatalf("unexpected sign-in event %+v", events[1])
	}
}

func TestEventsBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(SessionEvent{EventType: "e1"})
	dispatcher.Emit(SessionEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(SessionEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestEventsBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(SessionEvent{EventType: "e1"})
	dispatcher.Emit(SessionEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(SessionEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), SessionEvent{EventType: EventSignedOut, Seq: 4, Success: true})

	out := buf.String()
	if !strings.Contains(out, `"event_type":"signed_out"`) || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, `"seq":4`) {
		t.Fatalf("expected seq in output, got %q", out)
	}
}

func TestEventDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink)

	dispatcher.Emit(SessionEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(SessionEvent{EventType: "e2"})

	if got := sink.count.Load(); got != 1 {
		t.Fatalf("expected queued event to be flushed and late event ignored, got %d", got)
	}
}

func TestEventsOlderSeqSuperseded(t *testing.T) {
	sink := NewChannelSink(8)
	dispatcher := newEventDispatcher(EventsConfig{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)
	defer dispatcher.Close()

	dispatcher.Emit(SessionEvent{EventType: EventHydrated, Seq: 2})
	dispatcher.Emit(SessionEvent{EventType: EventSignedOut, Seq: 3})
	dispatcher.Emit(SessionEvent{EventType: EventHydrated, Seq: 2, Email: "late@b.com"})
	dispatcher.Emit(SessionEvent{EventType: EventSignedIn, Seq: 2})
	dispatcher.Emit(SessionEvent{EventType: EventVisibilityChanged})

	events := collectEvents(t, sink, 4)
	want := []string{EventHydrated, EventSignedOut, EventSignedIn, EventVisibilityChanged}
	for i, ev := range events {
		if ev.EventType != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], ev.EventType)
		}
		if ev.Email == "late@b.com" {
			t.Fatal("stale hydrated event delivered after sign-out")
		}
	}
	if got := dispatcher.Superseded(); got != 1 {
		t.Fatalf("expected 1 superseded event, got %d", got)
	}
}

func TestCloseReturnsWhenSinkReaderGone(t *testing.T) {
	st := storage.NewMemoryBackend().Open()
	sink := NewChannelSink(1)
	s := newTestStore(t, st, profilesByToken(nil), func(b *Builder) {
		cfg := DefaultConfig()
		cfg.Events = EventsConfig{Enabled: true, BufferSize: 4, DropIfFull: true, FlushTimeout: 50 * time.Millisecond}
		b.WithConfig(cfg).WithEventSink(sink)
	})

	for i := 0; i < 3; i++ {
		if err := s.SignOut(context.Background()); err != nil {
			t.Fatalf("sign out: %v", err)
		}
	}

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a sink nobody reads")
	}
	if s.EventsDropped() == 0 {
		t.Fatal("expected undelivered events to count as dropped")
	}
}

func TestCloseUnblocksEmitWaitingForRoom(t *testing.T) {
	st := storage.NewMemoryBackend().Open()
	sink := newGateSink()
	s := newTestStore(t, st, profilesByToken(nil), func(b *Builder) {
		cfg := DefaultConfig()
		cfg.Events = EventsConfig{Enabled: true, BufferSize: 1, DropIfFull: false, FlushTimeout: 20 * time.Millisecond}
		b.WithConfig(cfg).WithEventSink(sink)
	})

	signedOut := make(chan struct{})
	go func() {
		defer close(signedOut)
		for i := 0; i < 4; i++ {
			_ = s.SignOut(context.Background())
		}
	}()

	closed := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closed)
	}()
	for _, ch := range []chan struct{}{closed, signedOut} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			close(sink.gate)
			t.Fatal("Close did not release blocked emitters")
		}
	}
	close(sink.gate)
}
