// Package bridge synchronizes session phases between the two devices
// through the shared signal store.
//
// The primary writes phase changes with a Publisher and, in remote break
// mode, waits for the secondary's WorkReady with a Watcher. The secondary
// polls with a Consumer and reacts once per break.
package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// PhaseWriter writes phase signals.
type PhaseWriter interface {
	UpdatePhase(ctx context.Context, sig logic.SyncSignal) error
}

// Publisher writes signals in order on a single worker. Publish never
// blocks; when the queue is full the oldest pending signal is dropped,
// since only the latest signal is observable by the consumer.
type Publisher struct {
	w       PhaseWriter
	timeout time.Duration
	queue   chan logic.SyncSignal
	done    chan struct{}

	mu       sync.Mutex
	closed   bool
	last     logic.SyncSignal
	failures int
}

// NewPublisher starts a publisher with the given queue size.
func NewPublisher(w PhaseWriter, size int, timeout time.Duration) *Publisher {
	if size < 1 {
		size = 16
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Publisher{
		w:       w,
		timeout: timeout,
		queue:   make(chan logic.SyncSignal, size),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// Publish queues a signal.
func (p *Publisher) Publish(sig logic.SyncSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		log.Printf("bridge: publisher closed, dropping %s", sig.Phase)
		return
	}
	for {
		select {
		case p.queue <- sig:
			return
		default:
		}
		select {
		case old := <-p.queue:
			log.Printf("bridge: queue full, dropped %s for %s", old.Phase, old.SessionID)
		default:
		}
	}
}

func (p *Publisher) loop() {
	defer close(p.done)
	for sig := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.w.UpdatePhase(ctx, sig)
		cancel()

		p.mu.Lock()
		if err != nil {
			p.failures++
			log.Printf("bridge: publish %s for %s failed: %v", sig.Phase, sig.SessionID, err)
		} else {
			p.last = sig
			log.Printf("bridge: published %s session=%s pause=%d", sig.Phase, sig.SessionID, sig.PauseCount)
		}
		p.mu.Unlock()
	}
}

// Last returns the most recent successfully written signal.
func (p *Publisher) Last() logic.SyncSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Failures returns the number of failed writes.
func (p *Publisher) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// Close stops accepting signals and waits until the queue is drained or
// ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
