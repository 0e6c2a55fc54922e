package sessionauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples Manager operations from sink latency: events are
// queued on a buffered channel and delivered by a single worker goroutine.
// Closing the channel is the only shutdown signal; the worker drains what is
// queued and exits.
type auditDispatcher struct {
	cfg     AuditConfig
	sink    AuditSink
	ch      chan AuditEvent
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan AuditEvent, cfg.BufferSize),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()
	for event := range d.ch {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues an event for delivery. With DropIfFull it never blocks and
// counts discarded events; otherwise it waits for buffer space or context
// cancellation. Safe to call after Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}

	// The read lock keeps Close from closing the channel mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.ch <- event:
	case <-ctx.Done():
	}
}

// Close stops intake, waits for queued events to be delivered, and returns.
// Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
