package sessionkit

import (
	"context"
	"sync"
)

// Visibility is the foreground state of an execution context.
type Visibility uint8

const (
	VisibilityHidden Visibility = iota
	VisibilityVisible
)

func (v Visibility) String() string {
	if v == VisibilityVisible {
		return "visible"
	}
	return "hidden"
}

// VisibilitySource delivers visibility transitions. The channel is closed once ctx
// is done.
type VisibilitySource interface {
	WatchVisibility(ctx context.Context) (<-chan Visibility, error)
}

const visibilityBuffer = 4

// ManualVisibility is a VisibilitySource driven by explicit Set calls, for hosts that
// learn about foreground changes from their own event loop or from signals.
type ManualVisibility struct {
	mu       sync.Mutex
	current  Visibility
	watchers map[uint64]chan Visibility
	nextID   uint64
}

// NewManualVisibility returns a source whose initial state is visible.
func NewManualVisibility() *ManualVisibility {
	return &ManualVisibility{
		current:  VisibilityVisible,
		watchers: make(map[uint64]chan Visibility),
	}
}

// Current returns the last state passed to Set.
func (m *ManualVisibility) Current() Visibility {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set records v and notifies watchers. Watchers whose buffer is full miss the event.
func (m *ManualVisibility) Set(v Visibility) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = v
	for _, w := range m.watchers {
		select {
		case w <- v:
		default:
		}
	}
}

func (m *ManualVisibility) WatchVisibility(ctx context.Context) (<-chan Visibility, error) {
	ch := make(chan Visibility, visibilityBuffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.watchers, id)
		close(ch)
		m.mu.Unlock()
	}()

	return ch, nil
}
