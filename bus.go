package strix

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/strix/decision"
	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/internal/dispatch"
	"github.com/casualjim/strix/internal/registry"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/fogfish/opts"
)

// Bus is the global event bus shared by every agent constructed on it. It owns
// the global subscription registry, the agent directory and the worker pool.
// A Bus is safe for concurrent use and must be closed by its owner.
type Bus struct {
	workers          int
	queueSize        int
	maxDepth         int
	logger           *slog.Logger
	evaluator        decision.Evaluator
	evaluatorTimeout time.Duration
	onError          func(*HandlerExecutionError)

	global     *registry.Subscriptions
	agents     registry.Registry[*Agent]
	dispatcher *dispatch.Dispatcher
	gate       *decision.Gate

	emitted    atomic.Uint64
	unroutable atomic.Uint64
	invalid    atomic.Uint64
	tooDeep    atomic.Uint64
	closed     atomic.Bool
}

// NewBus creates a bus and starts its worker pool. It panics when an option fails.
func NewBus(options ...BusOption) *Bus {
	b := &Bus{
		queueSize: dispatch.DefaultQueueSize,
		logger:    slog.Default().With(slogx.LoggerName("strix.bus")),
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}

	b.global = registry.NewSubscriptions()
	b.agents = registry.New[*Agent]()
	b.dispatcher = dispatch.New(dispatch.Config{
		Workers:   b.workers,
		QueueSize: b.queueSize,
		Logger:    b.logger,
		OnError:   b.onError,
	})

	gateOpts := []decision.GateOption{decision.WithLogger(b.logger)}
	if b.evaluatorTimeout > 0 {
		gateOpts = append(gateOpts, decision.WithTimeout(b.evaluatorTimeout))
	}
	b.gate = decision.NewGate(b.evaluator, gateOpts...)
	return b
}

// Emit publishes an event on the global bus. Only global subscriptions are
// considered. The payload is copied, so the caller may reuse it. Emit never
// blocks on handlers and reports nothing: unroutable or invalid events are
// logged.
func (b *Bus) Emit(ctx context.Context, name string, payload map[string]any) {
	b.Publish(ctx, events.New(name, events.Payload(payload).Clone()))
}

// EmitValue is Emit for payloads given as a struct or any other JSON encodable
// value. Only a value that cannot be encoded returns an error.
func (b *Bus) EmitValue(ctx context.Context, name string, v any) error {
	payload, err := events.PayloadOf(v)
	if err != nil {
		return err
	}
	b.Publish(ctx, events.New(name, payload))
	return nil
}

// EmitTargets expands the payload over the targets and publishes the resulting
// events on the global bus in declared order.
func (b *Bus) EmitTargets(ctx context.Context, payload map[string]any, targets ...events.Target) {
	for _, ev := range events.Expand(payload, targets) {
		b.Publish(ctx, ev)
	}
}

// Publish routes a prepared event through the global bus.
func (b *Bus) Publish(ctx context.Context, ev events.Event) {
	b.route(ctx, nil, ev)
}

// On subscribes a handler to a pattern on the global bus. The handler is an
// observer: it belongs to no agent and receives every matching event.
func (b *Bus) On(pattern string, handler events.HandlerFunc) (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	sub, err := b.global.Register(registry.Spec{Pattern: pattern, Handler: handler})
	if err != nil {
		return nil, err
	}
	return newSubscription(sub, func() { b.global.Unregister(sub.ID) }), nil
}

// Decide evaluates a decision with the bus evaluator and, when it fires, emits
// its handler targets on the global bus. Evaluator failures are logged and
// returned; nothing is emitted for them.
func (b *Bus) Decide(ctx context.Context, d decision.Decision) (bool, error) {
	return b.gate.EvaluateAndDispatch(ctx, b, d)
}

// Agent returns the registered agent with the given id.
func (b *Bus) Agent(id string) (*Agent, bool) {
	return b.agents.Get(id)
}

// Wait blocks until every queued and running handler has finished, including
// handlers triggered by events emitted along the way.
func (b *Bus) Wait(ctx context.Context) error {
	return b.dispatcher.Wait(ctx)
}

// Close stops accepting events and waits for in-flight handlers. Events
// emitted after Close are dropped. Close is idempotent.
func (b *Bus) Close(ctx context.Context) error {
	b.closed.Store(true)
	return b.dispatcher.Close(ctx)
}

// Stats is a snapshot of bus counters.
type Stats struct {
	// Emitted counts events that passed validation and were routed.
	Emitted uint64
	// Unroutable counts events that matched no subscription.
	Unroutable uint64
	// Invalid counts events dropped for a malformed name.
	Invalid uint64
	// TooDeep counts events dropped by MaxChainDepth.
	TooDeep   uint64
	Scheduled uint64
	Succeeded uint64
	Failed    uint64
	Panicked  uint64
	Dropped   uint64
	Pending   int64

	Subscriptions int
	Agents        int
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	ds := b.dispatcher.Stats()
	return Stats{
		Emitted:       b.emitted.Load(),
		Unroutable:    b.unroutable.Load(),
		Invalid:       b.invalid.Load(),
		TooDeep:       b.tooDeep.Load(),
		Scheduled:     ds.Scheduled,
		Succeeded:     ds.Succeeded,
		Failed:        ds.Failed,
		Panicked:      ds.Panicked,
		Dropped:       ds.Dropped,
		Pending:       ds.Pending,
		Subscriptions: b.global.Len(),
		Agents:        b.agents.Len(),
	}
}

// Subscription is a handle to a registered handler.
type Subscription struct {
	id      string
	pattern string
	owner   string
	once    sync.Once
	remove  func()
}

func newSubscription(sub *registry.Subscription, remove func()) *Subscription {
	return &Subscription{
		id:      sub.ID,
		pattern: sub.Pattern.String(),
		owner:   sub.Owner,
		remove:  remove,
	}
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the subscribed pattern.
func (s *Subscription) Pattern() string { return s.pattern }

// Owner returns the id of the owning agent, empty for bus observers.
func (s *Subscription) Owner() string { return s.owner }

// Unsubscribe removes the handler. Events already dispatched may still reach
// it. Calling Unsubscribe more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.remove != nil {
			s.remove()
		}
	})
}
