package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-coursework/internal/logger"
)

// Queue fans events out to its sinks from a pool of workers. Publish never
// blocks: when the buffer is full the event is dropped with a warning.
type Queue struct {
	log     *logger.Logger
	sinks   []Sink
	ch      chan Event
	g       *errgroup.Group
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

type QueueOptions struct {
	Workers      int
	Buffer       int
	SinkTimeout  time.Duration
	StartContext context.Context
}

func NewQueue(log *logger.Logger, opts QueueOptions, sinks ...Sink) *Queue {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = 10 * time.Second
	}
	ctx := opts.StartContext
	if ctx == nil {
		ctx = context.Background()
	}
	q := &Queue{
		log:     log.With("service", "NotifyQueue"),
		sinks:   sinks,
		ch:      make(chan Event, opts.Buffer),
		timeout: opts.SinkTimeout,
	}
	g, gctx := errgroup.WithContext(ctx)
	q.g = g
	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			q.work(gctx)
			return nil
		})
	}
	return q
}

func (q *Queue) Publish(_ context.Context, ev Event) {
	if ev.ID == "" || ev.CreatedAt.IsZero() {
		fresh := NewEvent(ev.Type, ev.UserID, ev.CourseID, ev.Data)
		if ev.ID == "" {
			ev.ID = fresh.ID
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = fresh.CreatedAt
		}
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn("event published after close", "type", ev.Type, "event_id", ev.ID)
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.log.Warn("notification queue full, dropping event", "type", ev.Type, "event_id", ev.ID)
	}
}

func (q *Queue) work(ctx context.Context) {
	for ev := range q.ch {
		q.deliver(ctx, ev)
	}
}

func (q *Queue) deliver(ctx context.Context, ev Event) {
	for _, s := range q.sinks {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
		if err := s.Deliver(dctx, ev); err != nil {
			q.log.Warn("notification delivery failed", "sink", s.Name(), "type", ev.Type, "event_id", ev.ID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the buffered ones have been
// delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	return q.g.Wait()
}
