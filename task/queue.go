// Package task serializes background media jobs (thumbnailing, frame
// processing, audio extraction, filter application) onto a single
// execution channel, returning one future per submission.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrChannelTask wraps an error reported by the execution channel.
	ErrChannelTask = errors.New("background task failed")

	// ErrTaskTimeout is returned when a task exceeds the configured
	// per-task deadline.
	ErrTaskTimeout = errors.New("background task timed out")

	// ErrQueueClosed rejects futures whose task never ran because the
	// queue shut down first.
	ErrQueueClosed = errors.New("task queue closed")
)

// Future is the settled-exactly-once handle for a submitted task.
type Future struct {
	id    uint64
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settle(value any, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

type pendingTask struct {
	id      uint64
	kind    Kind
	payload any
	ctx     context.Context
	fut     *Future
}

// Stats is a snapshot of the queue counters.
type Stats struct {
	Pending   int
	InFlight  bool
	Completed int64
	Failed    int64
}

// Config holds the queue settings.
type Config struct {
	// Channel executes the tasks. Defaults to a SimChannel.
	Channel Channel

	// TaskTimeout bounds each task's execution. 0 means no deadline.
	TaskTimeout time.Duration
}

// Queue dispatches submitted tasks to the channel in strict FIFO order,
// with at most one task in flight. Every dequeued task settles its
// future exactly once, success or failure, so a channel error can never
// wedge the queue.
type Queue struct {
	channel Channel
	timeout time.Duration

	mu      sync.Mutex
	pending []*pendingTask
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	nextID    atomic.Uint64
	inFlight  atomic.Bool
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a Queue and starts its dispatcher.
func New(cfg Config) *Queue {
	channel := cfg.Channel
	if channel == nil {
		channel = &SimChannel{}
	}
	q := &Queue{
		channel: channel,
		timeout: cfg.TaskTimeout,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Submit enqueues a task and returns its future. If ctx is canceled
// before the task is dispatched, the future is rejected with the
// context error and the channel never sees the task.
func (q *Queue) Submit(ctx context.Context, kind Kind, payload any) *Future {
	fut := &Future{id: q.nextID.Add(1), done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		fut.settle(nil, ErrQueueClosed)
		return fut
	}
	q.pending = append(q.pending, &pendingTask{
		id:      fut.id,
		kind:    kind,
		payload: payload,
		ctx:     ctx,
		fut:     fut,
	})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return fut
}

// ProcessFrame submits a frame-process task.
func (q *Queue) ProcessFrame(ctx context.Context, payload any) *Future {
	return q.Submit(ctx, KindProcessFrame, payload)
}

// GenerateThumbnail submits a thumbnail-generate task.
func (q *Queue) GenerateThumbnail(ctx context.Context, payload any) *Future {
	return q.Submit(ctx, KindGenerateThumbnail, payload)
}

// ExtractAudio submits an audio-extract task.
func (q *Queue) ExtractAudio(ctx context.Context, payload any) *Future {
	return q.Submit(ctx, KindExtractAudio, payload)
}

// ApplyFilter submits a filter-apply task.
func (q *Queue) ApplyFilter(ctx context.Context, payload any) *Future {
	return q.Submit(ctx, KindApplyFilter, payload)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()
	return Stats{
		Pending:   pending,
		InFlight:  q.inFlight.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
	}
}

// Close stops the dispatcher. Tasks still waiting in the queue are
// rejected with ErrQueueClosed; an in-flight task finishes and settles
// normally. Close blocks until the dispatcher has exited.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	drained := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, t := range drained {
		t.fut.settle(nil, ErrQueueClosed)
	}
	close(q.stop)
	<-q.done
}

func (q *Queue) dispatch() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}
		for {
			t := q.pop()
			if t == nil {
				break
			}
			q.run(t)
		}
	}
}

func (q *Queue) pop() *pendingTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

// run executes one task against the channel and always settles its
// future before returning.
func (q *Queue) run(t *pendingTask) {
	if err := t.ctx.Err(); err != nil {
		q.failed.Add(1)
		t.fut.settle(nil, err)
		return
	}

	ctx := t.ctx
	cancel := context.CancelFunc(func() {})
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
	}
	defer cancel()

	q.inFlight.Store(true)
	value, err := q.channel.Run(ctx, t.kind, t.payload)
	q.inFlight.Store(false)

	if err != nil {
		q.failed.Add(1)
		// A deadline error is only ours if the submit context is still
		// live; otherwise the caller's own deadline fired.
		if q.timeout > 0 && errors.Is(err, context.DeadlineExceeded) && t.ctx.Err() == nil {
			err = fmt.Errorf("%w: %s after %s", ErrTaskTimeout, t.kind, q.timeout)
		} else {
			err = fmt.Errorf("%w: %s: %w", ErrChannelTask, t.kind, err)
		}
		slog.Warn("Background task failed", "id", t.id, "kind", t.kind, "error", err)
		t.fut.settle(nil, err)
		return
	}

	q.completed.Add(1)
	t.fut.settle(value, nil)
}
