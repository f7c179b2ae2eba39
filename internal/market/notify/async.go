package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/songzhibin97/qwork/pkg/log"
)

// ErrQueueFull is returned when the send queue has no room
var ErrQueueFull = errors.New("notification queue is full")

// ErrClosed is returned by Send after Close
var ErrClosed = errors.New("notifier is closed")

const defaultSendTimeout = 30 * time.Second

// AsyncNotifier queues messages and delivers them from a background worker.
// Delivery failures are logged and never reported to the sender.
type AsyncNotifier struct {
	next    Notifier
	logger  log.Logger
	queue   chan *Message
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncNotifier starts a worker delivering through next
func NewAsyncNotifier(next Notifier, queueSize int, logger log.Logger) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = log.NewNop()
	}
	n := &AsyncNotifier{
		next:    next,
		logger:  logger.With(log.Component("notify")),
		queue:   make(chan *Message, queueSize),
		timeout: defaultSendTimeout,
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Send enqueues msg without waiting for delivery
func (n *AsyncNotifier) Send(ctx context.Context, msg *Message) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.queue <- msg:
		return nil
	default:
		n.logger.WithContext(ctx).Warn("Dropping email, queue is full", log.String(log.FieldEmail, msg.To))
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits until the queue is drained
func (n *AsyncNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for msg := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.next.Send(ctx, msg); err != nil {
			n.logger.Error("Failed to deliver email",
				log.String(log.FieldEmail, msg.To),
				log.String("subject", msg.Subject),
				log.Error(err),
			)
		}
		cancel()
	}
}
