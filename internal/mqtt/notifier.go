package mqtt

import (
	"context"
	"log"
	"sync"

	"github.com/sweeney/study-station/internal/logic"
)

// Notifier hands notifications to a Publisher without blocking the caller.
// A single worker publishes them in order; when the queue is full the new
// notification is dropped and logged.
type Notifier struct {
	pub Publisher

	mu     sync.Mutex
	queue  chan logic.Notification
	done   chan struct{}
	closed bool
	failed int
}

// NewNotifier starts the worker with a queue of size entries.
func NewNotifier(pub Publisher, size int) *Notifier {
	if size <= 0 {
		size = 32
	}
	n := &Notifier{
		pub:   pub,
		queue: make(chan logic.Notification, size),
		done:  make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		if err := n.pub.Publish(msg); err != nil {
			n.mu.Lock()
			n.failed++
			n.mu.Unlock()
			log.Printf("mqtt: publish %s failed: %v", msg.Kind, err)
		}
	}
}

// Notify queues a notification.
func (n *Notifier) Notify(msg logic.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- msg:
	default:
		log.Printf("mqtt: notification queue full, dropping %s", msg.Kind)
	}
}

// Failures returns the number of notifications the publisher rejected.
func (n *Notifier) Failures() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failed
}

// Close stops accepting notifications and waits for the queue to drain
// or ctx to expire.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
