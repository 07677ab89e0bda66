package sessionkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultEventsFlushTimeout bounds how long Close waits for the sink to take queued
// events when EventsConfig.FlushTimeout is zero.
const DefaultEventsFlushTimeout = 2 * time.Second

// eventDispatcher hands session events to one sink from a single goroutine, in the
// order the store emitted them.
//
// Store transitions can be emitted out of sequence order: a hydration settles and,
// before it emits, a sign-out or newer hydration settles and emits first. The
// dispatcher keeps the highest Seq it has queued and drops hydrated and signed_out
// events below it, so a sink never sees the view move back to an older state.
type eventDispatcher struct {
	sink         EventSink
	dropIfFull   bool
	flushTimeout time.Duration

	queue chan SessionEvent
	done  chan struct{}

	// ctx is handed to the sink; Close cancels it once the flush deadline passes.
	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu      sync.Mutex
	lastSeq uint64

	dropped    atomic.Uint64
	superseded atomic.Uint64
}

// newEventDispatcher returns nil when events are disabled or there is nowhere to send
// them; every method accepts a nil dispatcher.
func newEventDispatcher(cfg EventsConfig, sink EventSink) *eventDispatcher {
	if !cfg.Enabled || sink == nil {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = DefaultEventsFlushTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &eventDispatcher{
		sink:         sink,
		dropIfFull:   cfg.DropIfFull,
		flushTimeout: flush,
		queue:        make(chan SessionEvent, size),
		done:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *eventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *eventDispatcher) deliver(event SessionEvent) {
	if d.ctx.Err() != nil {
		d.dropped.Add(1)
		return
	}
	d.sink.Emit(d.ctx, event)
}

// Emit stamps and queues event. With dropIfFull a full queue drops the event and counts
// it; otherwise Emit waits for room or Close. Events emitted after Close are ignored.
func (d *eventDispatcher) Emit(event SessionEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.done:
		return
	default:
	}
	if !d.current(event) {
		d.superseded.Add(1)
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.done:
	}
}

// current advances the sequence watermark and reports whether event still describes
// the latest view. signed_in is kept even when behind: it records the action, not the view.
func (d *eventDispatcher) current(event SessionEvent) bool {
	if event.Seq == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if event.Seq >= d.lastSeq {
		d.lastSeq = event.Seq
		return true
	}
	switch event.EventType {
	case EventHydrated, EventSignedOut:
		return false
	default:
		return true
	}
}

// Close stops intake and delivers what is queued. A sink still blocked after the flush
// timeout has its context cancelled; the events it did not take count as dropped.
func (d *eventDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.done)
		deadline := time.AfterFunc(d.flushTimeout, d.cancel)
		d.wg.Wait()
		deadline.Stop()
		d.cancel()
	})
}

func (d *eventDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *eventDispatcher) Superseded() uint64 {
	if d == nil {
		return 0
	}
	return d.superseded.Load()
}
