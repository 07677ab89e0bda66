package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const memoryWatchBuffer = 16

// MemoryBackend is an in-process key-value area shared by several execution contexts.
//
// It mirrors browser storage semantics: writes through one [MemoryContext] are visible to
// all contexts immediately, and a change notification is delivered to every other open
// context that is watching.
type MemoryBackend struct {
	mu       sync.Mutex
	values   map[string]string
	contexts map[string]*MemoryContext
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values:   make(map[string]string),
		contexts: make(map[string]*MemoryContext),
	}
}

// Open attaches a new execution context with its own origin id.
func (b *MemoryBackend) Open() *MemoryContext {
	c := &MemoryContext{
		backend:  b,
		origin:   uuid.NewString(),
		watchers: make(map[uint64]chan Change),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.contexts[c.origin] = c
	b.mu.Unlock()
	return c
}

func (b *MemoryBackend) broadcast(origin string, keys []string) {
	b.mu.Lock()
	targets := make([]*MemoryContext, 0, len(b.contexts))
	for id, c := range b.contexts {
		if id != origin {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		for _, key := range keys {
			c.deliver(Change{Key: key, Origin: origin})
		}
	}
}

// MemoryContext is one execution context's handle onto a [MemoryBackend].
type MemoryContext struct {
	backend *MemoryBackend
	origin  string

	mu       sync.Mutex
	watchers map[uint64]chan Change
	nextID   uint64
	closed   bool
	done     chan struct{}
}

// Origin returns the context's origin id carried in the changes it produces.
func (c *MemoryContext) Origin() string {
	return c.origin
}

func (c *MemoryContext) Get(_ context.Context, key string) (string, bool, error) {
	if err := validKey(key); err != nil {
		return "", false, err
	}
	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	v, ok := c.backend.values[key]
	return v, ok, nil
}

func (c *MemoryContext) Set(_ context.Context, key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	c.backend.mu.Lock()
	c.backend.values[key] = value
	c.backend.mu.Unlock()

	c.backend.broadcast(c.origin, []string{key})
	return nil
}

func (c *MemoryContext) Remove(_ context.Context, keys ...string) error {
	removed := make([]string, 0, len(keys))
	c.backend.mu.Lock()
	for _, key := range keys {
		if _, ok := c.backend.values[key]; ok {
			delete(c.backend.values, key)
			removed = append(removed, key)
		}
	}
	c.backend.mu.Unlock()

	if len(removed) > 0 {
		c.backend.broadcast(c.origin, removed)
	}
	return nil
}

func (c *MemoryContext) RemoveIf(_ context.Context, key, expected string, also ...string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	c.backend.mu.Lock()
	if v, ok := c.backend.values[key]; ok && v != expected {
		c.backend.mu.Unlock()
		return false, nil
	}
	removed := make([]string, 0, len(also)+1)
	for _, k := range append([]string{key}, also...) {
		if _, ok := c.backend.values[k]; ok {
			delete(c.backend.values, k)
			removed = append(removed, k)
		}
	}
	c.backend.mu.Unlock()

	if len(removed) > 0 {
		c.backend.broadcast(c.origin, removed)
	}
	return true, nil
}

// Watch subscribes to changes made by other contexts of the same backend.
//
// Delivery never blocks a writer: when a watcher's buffer is full further changes are
// dropped for that watcher. Each change only prompts a re-read, so a dropped duplicate
// carries no information the next delivered one lacks.
func (c *MemoryContext) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, memoryWatchBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, nil
	}
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.mu.Lock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
		c.mu.Unlock()
	}()

	return ch, nil
}

// Close detaches the context from its backend and closes all of its watch channels.
func (c *MemoryContext) Close() {
	c.backend.mu.Lock()
	delete(c.backend.contexts, c.origin)
	c.backend.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for id, w := range c.watchers {
		delete(c.watchers, id)
		close(w)
	}
}

func (c *MemoryContext) deliver(change Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watchers {
		select {
		case w <- change:
		default:
		}
	}
}
