package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed rejects operations submitted to, or still pending in, a closed queue.
var ErrClosed = errors.New("queue closed")

// Op is an operation executed by the queue.
type Op[T any] func(ctx context.Context) (T, error)

// Options configures a Queue.
type Options struct {
	// Name labels metrics and logs.
	Name   string
	Logger *zerolog.Logger
}

// Queue runs submitted operations one at a time in FIFO order.
type Queue struct {
	name string
	log  zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []job
	closed  bool

	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// job is a type-erased queued task.
type job interface {
	run(base context.Context)
	reject(err error)
}

// New starts a queue and its worker goroutine.
func New(opts Options) *Queue {
	name := opts.Name
	if name == "" {
		name = "default"
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	base, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:   name,
		log:    log.With().Str("queue", name).Logger(),
		base:   base,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Enqueue submits op and returns its Future. name labels the operation in
// metrics and logs. ctx is passed to op when its turn comes; if ctx is already
// done by then, op is skipped and the Future is rejected with ctx.Err().
func Enqueue[T any](q *Queue, ctx context.Context, name string, op Op[T]) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	fut := newFuture[T]()
	t := &task[T]{q: q, name: name, ctx: ctx, op: op, fut: fut, enqueued: time.Now()}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.reject(ErrClosed)
		return fut
	}
	q.pending = append(q.pending, t)
	depth := len(q.pending)
	q.mu.Unlock()
	q.cond.Signal()
	queueDepth.WithLabelValues(q.name).Set(float64(depth))
	return fut
}

// Do submits op and waits for its result.
func Do[T any](q *Queue, ctx context.Context, name string, op Op[T]) (T, error) {
	return Enqueue(q, ctx, name, op).Wait(ctx)
}

// Len returns the number of operations waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops admission, rejects pending operations with ErrClosed, cancels the
// in-flight operation's context and waits for the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()
	q.cond.Broadcast()
	q.cancel()
	for _, j := range pending {
		j.reject(ErrClosed)
	}
	queueDepth.WithLabelValues(q.name).Set(0)
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		j := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		depth := len(q.pending)
		q.mu.Unlock()
		queueDepth.WithLabelValues(q.name).Set(float64(depth))
		j.run(q.base)
	}
}

type task[T any] struct {
	q        *Queue
	name     string
	ctx      context.Context
	op       Op[T]
	fut      *Future[T]
	enqueued time.Time
}

func (t *task[T]) reject(err error) {
	var zero T
	queueOpsTotal.WithLabelValues(t.q.name, t.name, "closed").Inc()
	t.fut.resolve(zero, err)
}

func (t *task[T]) run(base context.Context) {
	queueWait.WithLabelValues(t.q.name, t.name).Observe(time.Since(t.enqueued).Seconds())
	if err := t.ctx.Err(); err != nil {
		var zero T
		queueOpsTotal.WithLabelValues(t.q.name, t.name, "canceled").Inc()
		t.q.log.Debug().Str("op", t.name).Err(err).Msg("skipped: caller context done")
		t.fut.resolve(zero, err)
		return
	}
	ctx, cancel := joinContexts(base, t.ctx)
	defer cancel()

	start := time.Now()
	v, panicked, err := t.call(ctx)
	dur := time.Since(start)
	queueRun.WithLabelValues(t.q.name, t.name).Observe(dur.Seconds())

	outcome := "ok"
	switch {
	case panicked:
		outcome = "panic"
		t.q.log.Error().Str("op", t.name).Err(err).Msg("operation panicked")
	case err != nil:
		outcome = "error"
		t.q.log.Debug().Str("op", t.name).Dur("dur", dur).Err(err).Msg("operation failed")
	default:
		t.q.log.Debug().Str("op", t.name).Dur("dur", dur).Msg("operation done")
	}
	queueOpsTotal.WithLabelValues(t.q.name, t.name, outcome).Inc()
	t.fut.resolve(v, err)
}

// call runs op, converting a panic into an error so the worker survives.
func (t *task[T]) call(ctx context.Context) (v T, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, panicked, err = zero, true, fmt.Errorf("operation %s panicked: %v", t.name, r)
		}
	}()
	v, err = t.op(ctx)
	return v, false, err
}
