package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aegismesh/aegis-meta/internal/metrics"
	"github.com/aegismesh/aegis-meta/internal/models"
	"github.com/aegismesh/aegis-meta/pkg/ringbuf"
)

// EventHandler consumes one drained event.
type EventHandler func(ctx context.Context, event models.Event)

// DefaultIntakeCapacity bounds the intake ring; the oldest queued event is
// dropped when a submit arrives with the ring full.
const DefaultIntakeCapacity = 1000

// Listener is the asynchronous intake stage. Producers call Submit from any
// goroutine; a single drain loop hands events to registered handlers, or to
// the default handler for types without one.
type Listener struct {
	logger *slog.Logger

	mu          sync.Mutex
	ring        *ringbuf.Ring[models.Event]
	handlers    map[string][]EventHandler
	defaultFn   EventHandler
	notify      chan struct{}
	dropped     atomic.Int64
	submissions atomic.Int64
}

// NewListener creates a listener with the given intake capacity; capacity
// values below one fall back to DefaultIntakeCapacity.
func NewListener(capacity int, logger *slog.Logger) *Listener {
	if capacity < 1 {
		capacity = DefaultIntakeCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		logger:   logger,
		ring:     ringbuf.New[models.Event](capacity),
		handlers: make(map[string][]EventHandler),
		notify:   make(chan struct{}, 1),
	}
}

// RegisterHandler adds a handler for one raw event type. Multiple handlers
// per type run in registration order.
func (l *Listener) RegisterHandler(eventType string, fn EventHandler) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.handlers[eventType] = append(l.handlers[eventType], fn)
	l.mu.Unlock()
}

// RegisterDefault sets the handler for event types with no registered
// handler of their own.
func (l *Listener) RegisterDefault(fn EventHandler) {
	l.mu.Lock()
	l.defaultFn = fn
	l.mu.Unlock()
}

// Submit queues an event for the drain loop. A zero timestamp is stamped at
// intake. Submitting onto a full ring drops the oldest queued event.
func (l *Listener) Submit(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	if l.ring.Len() == l.ring.Cap() {
		l.dropped.Add(1)
		metrics.IncIntakeDrop()
		l.logger.Warn("intake ring full, dropping oldest event", slog.String("event_id", event.ID))
	}
	l.ring.Push(event)
	l.submissions.Add(1)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Run drains queued events until the context is cancelled. Events are handled
// sequentially in arrival order.
func (l *Listener) Run(ctx context.Context) {
	for {
		event, ok := l.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-l.notify:
				continue
			}
		}
		l.dispatch(ctx, event)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Depth reports the number of queued events.
func (l *Listener) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Len()
}

// Dropped reports how many events were evicted at intake.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// Submissions reports the total number of accepted submits.
func (l *Listener) Submissions() int64 {
	return l.submissions.Load()
}

func (l *Listener) pop() (models.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.PopFront()
}

func (l *Listener) dispatch(ctx context.Context, event models.Event) {
	l.mu.Lock()
	chain := l.handlers[event.Type]
	fallback := l.defaultFn
	l.mu.Unlock()

	if len(chain) == 0 {
		if fallback != nil {
			fallback(ctx, event)
		}
		return
	}
	for _, fn := range chain {
		fn(ctx, event)
	}
}
