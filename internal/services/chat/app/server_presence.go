package server

import (
	"context"
	"log"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phantom-chat/phantom/internal/storage"
)

const presenceQueueSize = 1024

type presenceUpdate struct {
	phantomID string
	status    storage.Status
	flushed   chan struct{}
}

// presenceTracker counts bound connections per Phantom ID and writes a marker
// on the first bind and the last unbind. Writes are applied in order by one
// goroutine so they never run under a room lock.
type presenceTracker struct {
	mu      deadlock.Mutex
	bound   map[string]int
	closed  bool
	updates chan presenceUpdate
	done    chan struct{}

	store   storage.PresenceStore
	timeout time.Duration
	tracer  trace.Tracer
}

func newPresenceTracker(store storage.PresenceStore, timeout time.Duration, tracer trace.Tracer) *presenceTracker {
	p := &presenceTracker{
		bound:   make(map[string]int),
		updates: make(chan presenceUpdate, presenceQueueSize),
		done:    make(chan struct{}),
		store:   store,
		timeout: timeout,
		tracer:  tracer,
	}
	go p.run()
	return p
}

func (p *presenceTracker) bind(phantomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound[phantomID]++
	if p.bound[phantomID] == 1 {
		p.enqueueLocked(presenceUpdate{phantomID: phantomID, status: storage.StatusOnline})
	}
}

func (p *presenceTracker) unbind(phantomID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bound[phantomID] <= 1 {
		delete(p.bound, phantomID)
		p.enqueueLocked(presenceUpdate{phantomID: phantomID, status: storage.StatusOffline})
		return
	}
	p.bound[phantomID]--
}

func (p *presenceTracker) enqueueLocked(update presenceUpdate) {
	if p.closed {
		return
	}
	select {
	case p.updates <- update:
	default:
		log.Printf("chat: presence queue full, dropping phantom=%q status=%q", update.phantomID, update.status)
	}
}

// flush blocks until every update queued so far has been applied.
func (p *presenceTracker) flush() {
	flushed := make(chan struct{})
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.updates <- presenceUpdate{flushed: flushed}
	p.mu.Unlock()
	<-flushed
}

func (p *presenceTracker) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.updates)
	p.mu.Unlock()
	<-p.done
}

func (p *presenceTracker) run() {
	defer close(p.done)
	for update := range p.updates {
		if update.flushed != nil {
			close(update.flushed)
			continue
		}
		p.apply(update)
	}
}

func (p *presenceTracker) apply(update presenceUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "presence.set", trace.WithAttributes(
		attribute.String("presence.status", string(update.status)),
	))
	defer span.End()

	if err := p.store.SetStatus(ctx, update.phantomID, update.status); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "set presence failed")
		log.Printf("chat: presence update failed phantom=%q status=%q err=%v", update.phantomID, update.status, err)
	}
}
