// Package dispatch runs matched handlers on a worker pool.
//
// Dispatch never blocks the caller: a resolved batch (one event and the
// subscriptions it matched) is appended to an unbounded intake queue. A single
// scheduler goroutine moves batches from the intake into a bounded job channel
// consumed by the workers, so a full pool slows the scheduler and never the
// emitter. Every invocation receives its own deep copy of the event payload and
// runs behind a recover, so one failing handler cannot affect another.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/internal/registry"
	"github.com/casualjim/strix/pkg/slogx"
)

const (
	DefaultQueueSize = 1024
	minWorkers       = 4
)

// HandlerExecutionError describes a handler that returned an error or panicked.
type HandlerExecutionError struct {
	Event          string
	EventID        string
	Owner          string
	SubscriptionID string
	Pattern        string
	Panicked       bool
	Stack          []byte
	Err            error
}

func (e *HandlerExecutionError) Error() string {
	owner := e.Owner
	if owner == "" {
		owner = "-"
	}
	verb := "failed"
	if e.Panicked {
		verb = "panicked"
	}
	return fmt.Sprintf("handler %s (agent %s, pattern %s) %s on %s: %v", e.SubscriptionID, owner, e.Pattern, verb, e.Event, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error {
	return e.Err
}

// Config configures a Dispatcher.
type Config struct {
	// Workers is the number of handler goroutines. Defaults to max(4, GOMAXPROCS).
	Workers int
	// QueueSize bounds the job channel between the scheduler and the workers.
	QueueSize int
	Logger    *slog.Logger
	// OnError observes every handler failure after it is logged.
	OnError func(*HandlerExecutionError)
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Batches   uint64
	Scheduled uint64
	Succeeded uint64
	Failed    uint64
	Panicked  uint64
	Dropped   uint64
	Pending   int64
}

type batch struct {
	event events.Event
	subs  []*registry.Subscription
}

type job struct {
	event events.Event
	sub   *registry.Subscription
}

// Dispatcher executes handlers asynchronously.
type Dispatcher struct {
	logger  *slog.Logger
	onError func(*HandlerExecutionError)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []batch
	closing bool
	wake    chan struct{}

	jobs      chan job
	workers   sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once

	outstanding atomic.Int64
	batches     atomic.Uint64
	scheduled   atomic.Uint64
	succeeded   atomic.Uint64
	failed      atomic.Uint64
	panicked    atomic.Uint64
	dropped     atomic.Uint64
}

// New creates a dispatcher and starts its scheduler and workers.
func New(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = max(minWorkers, runtime.GOMAXPROCS(0))
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With(slogx.LoggerName("strix.dispatch"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:  cfg.Logger,
		onError: cfg.OnError,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		jobs:    make(chan job, cfg.QueueSize),
		done:    make(chan struct{}),
	}

	d.workers.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.work()
	}
	go d.schedule()
	return d
}

// Dispatch queues one invocation of every subscription for the event and
// returns immediately. It reports false when the dispatcher is closed and the
// batch was dropped.
func (d *Dispatcher) Dispatch(ev events.Event, subs []*registry.Subscription) bool {
	if len(subs) == 0 {
		return true
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.dropped.Add(uint64(len(subs)))
		return false
	}
	d.pending = append(d.pending, batch{event: ev, subs: subs})
	d.outstanding.Add(int64(len(subs)))
	d.mu.Unlock()

	d.batches.Add(1)
	d.notify()
	return true
}

// Wait blocks until no invocation is pending or running. Handlers that emit
// keep the dispatcher busy, so Wait returns only once a chain has settled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d.outstanding.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.outstanding.Load() == 0 {
				return nil
			}
		}
	}
}

// Close stops accepting batches and waits for queued invocations to finish.
// When ctx expires first, handler contexts are cancelled, batches not yet
// handed to a worker are dropped and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()
		d.notify()
	})

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

// Closed reports whether Close has been called.
func (d *Dispatcher) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closing
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Batches:   d.batches.Load(),
		Scheduled: d.scheduled.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		Panicked:  d.panicked.Load(),
		Dropped:   d.dropped.Load(),
		Pending:   d.outstanding.Load(),
	}
}

func (d *Dispatcher) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) schedule() {
	defer func() {
		close(d.jobs)
		d.workers.Wait()
		close(d.done)
	}()

	for {
		b, ok := d.next()
		if !ok {
			d.dropPending()
			return
		}
		for i, sub := range b.subs {
			select {
			case d.jobs <- job{event: b.event, sub: sub}:
				d.scheduled.Add(1)
			case <-d.ctx.Done():
				d.abandon(len(b.subs) - i)
				d.dropPending()
				return
			}
		}
	}
}

func (d *Dispatcher) next() (batch, bool) {
	for {
		d.mu.Lock()
		if len(d.pending) > 0 {
			b := d.pending[0]
			d.pending[0] = batch{}
			d.pending = d.pending[1:]
			d.mu.Unlock()
			return b, true
		}
		closing := d.closing
		d.mu.Unlock()

		if closing {
			return batch{}, false
		}
		select {
		case <-d.wake:
		case <-d.ctx.Done():
			return batch{}, false
		}
	}
}

func (d *Dispatcher) dropPending() {
	d.mu.Lock()
	rest := d.pending
	d.pending = nil
	d.closing = true
	d.mu.Unlock()

	for _, b := range rest {
		d.abandon(len(b.subs))
	}
}

func (d *Dispatcher) abandon(n int) {
	if n <= 0 {
		return
	}
	d.dropped.Add(uint64(n))
	d.outstanding.Add(-int64(n))
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for j := range d.jobs {
		d.invoke(j)
	}
}

func (d *Dispatcher) invoke(j job) {
	defer d.outstanding.Add(-1)

	view := j.event.Clone()
	ctx := events.WithEvent(d.ctx, view)

	stack, err := d.run(ctx, j.sub, view)
	if err == nil {
		d.succeeded.Add(1)
		return
	}

	herr := &HandlerExecutionError{
		Event:          view.Name,
		EventID:        view.ID,
		Owner:          j.sub.Owner,
		SubscriptionID: j.sub.ID,
		Pattern:        j.sub.Pattern.String(),
		Panicked:       stack != nil,
		Stack:          stack,
		Err:            err,
	}
	if herr.Panicked {
		d.panicked.Add(1)
	} else {
		d.failed.Add(1)
	}

	attrs := []any{
		slogx.Event(herr.Event),
		slogx.EventID(herr.EventID),
		slogx.AgentID(herr.Owner),
		slogx.SubscriptionID(herr.SubscriptionID),
		slogx.Pattern(herr.Pattern),
		slogx.Error(err),
	}
	if herr.Panicked {
		attrs = append(attrs, slogx.ByteString("stack", stack))
	}
	d.logger.ErrorContext(ctx, "handler execution failed", attrs...)

	d.report(ctx, herr)
}

// report hands a failure to the OnError hook. A panicking hook is logged and
// does not take the worker down.
func (d *Dispatcher) report(ctx context.Context, herr *HandlerExecutionError) {
	if d.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "error hook panicked",
				slogx.Event(herr.Event),
				slogx.EventID(herr.EventID),
				slog.Any("panic", r),
				slogx.ByteString("stack", debug.Stack()),
			)
		}
	}()
	d.onError(herr)
}

func (d *Dispatcher) run(ctx context.Context, sub *registry.Subscription, ev events.Event) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = debug.Stack()
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", rerr)
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return nil, sub.Handler(ctx, ev)
}
