package sessionkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Session event types.
const (
	EventHydrated          = "hydrated"
	EventSignedIn          = "signed_in"
	EventSignedOut         = "signed_out"
	EventExternalChange    = "external_change"
	EventVisibilityChanged = "visibility_changed"
)

// SessionEvent records one session transition. It never carries the bearer token.
type SessionEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	Seq        uint64            `json:"seq"`
	Email      string            `json:"email,omitempty"`
	AuthMethod string            `json:"auth_method,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EventSink receives session events from the dispatcher goroutine. Emit may block;
// it must return once ctx is done, which happens when the store is closed and the
// flush timeout has passed.
type EventSink interface {
	Emit(ctx context.Context, event SessionEvent)
}

// ChannelSink forwards events to a buffered channel. When the reader falls behind,
// Emit waits until the store closes.
type ChannelSink struct {
	events chan SessionEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan SessionEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event SessionEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events is never closed.
func (s *ChannelSink) Events() <-chan SessionEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line, as `watch --events` prints them.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event SessionEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}
