package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxBatch = 64

// Config controls how the dispatcher queues and hands off events.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the queue is full instead of
	// blocking the caller until there is room or ctx ends.
	DropIfFull bool
	// MaxBatch bounds how many queued events reach a BatchSink in one call.
	// Zero means 64.
	MaxBatch int
	// OnDrop runs on the emitting goroutine for every discarded event. It
	// must not block.
	OnDrop func(Event)
}

// Dispatcher moves events from request goroutines to a sink on a single
// relay goroutine. A nil Dispatcher ignores every call.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	batch BatchSink

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}

	dropped   atomic.Uint64
	delivered atomic.Uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the relay goroutine, or returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:      cfg,
		sink:     sink,
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	d.batch, _ = sink.(BatchSink)

	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.finished)

	buf := make([]Event, 0, d.cfg.MaxBatch)
	for {
		select {
		case ev := <-d.queue:
			d.flush(d.collect(append(buf[:0], ev)))
		case <-d.stop:
			for {
				pending := d.collect(buf[:0])
				if len(pending) == 0 {
					return
				}
				d.flush(pending)
			}
		}
	}
}

// collect fills buf from the queue without blocking.
func (d *Dispatcher) collect(buf []Event) []Event {
	for len(buf) < cap(buf) {
		select {
		case ev := <-d.queue:
			buf = append(buf, ev)
		default:
			return buf
		}
	}
	return buf
}

func (d *Dispatcher) flush(events []Event) {
	ctx := context.Background()
	if d.batch != nil {
		d.batch.EmitBatch(ctx, events)
	} else {
		for _, ev := range events {
			d.sink.Emit(ctx, ev)
		}
	}
	d.delivered.Add(uint64(len(events)))
}

// Emit queues event for delivery. It never returns an error: audit
// failures must not fail the MFA operation that produced them.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
			if d.cfg.OnDrop != nil {
				d.cfg.OnDrop(event)
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.finished
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
