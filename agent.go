package strix

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casualjim/strix/decision"
	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/internal/registry"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/fogfish/opts"
)

// Agent is a reactive participant on a bus. It owns a local hub holding its own
// handlers; the same handlers are also registered on the global bus so other
// agents' events reach them.
type Agent struct {
	id       string
	name     string
	bindings *Bindings

	bus   *Bus
	local *registry.Subscriptions

	mu         sync.Mutex
	registered bool
	disposed   atomic.Bool
}

// NewAgent creates an agent on the bus and registers every declared binding in
// its local hub and on the global bus before returning. A malformed pattern
// fails the construction without registering anything. An id already in use on
// the bus returns *AlreadyRegisteredError.
func NewAgent(bus *Bus, options ...AgentOption) (*Agent, error) {
	if bus == nil {
		return nil, errors.New("bus is required")
	}
	a := &Agent{
		bus:      bus,
		local:    registry.NewSubscriptions(),
		bindings: NewBindings(),
	}
	if err := opts.Apply(a, options); err != nil {
		return nil, err
	}
	if a.id == "" {
		a.id = uuidx.Prefixed("agent")
	}
	if a.name == "" {
		a.name = a.id
	}
	if err := a.Register(); err != nil {
		return nil, err
	}
	return a, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Name returns the agent display name.
func (a *Agent) Name() string { return a.name }

// Bus returns the bus the agent is registered on.
func (a *Agent) Bus() *Bus { return a.bus }

// Bindings returns the names of the agent's declared bindings in registration order.
func (a *Agent) Bindings() []string { return a.bindings.Names() }

// Register binds the agent's declared handlers. NewAgent calls it; calling it
// again on a registered agent returns *AlreadyRegisteredError.
func (a *Agent) Register() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed.Load() {
		return ErrAgentDisposed
	}
	if a.registered {
		return &AlreadyRegisteredError{AgentID: a.id}
	}
	if a.bus.closed.Load() {
		return ErrBusClosed
	}
	if err := a.bindings.Validate(); err != nil {
		return err
	}
	if !a.bus.agents.Add(a.id, a) {
		return &AlreadyRegisteredError{AgentID: a.id}
	}

	bindings := a.bindings.List()
	specs := make([]registry.Spec, 0, len(bindings))
	for _, binding := range bindings {
		specs = append(specs, registry.Spec{
			Pattern: binding.Pattern,
			Handler: binding.Handler,
			Owner:   a.id,
			Binding: a.id + "/" + binding.Name,
		})
	}

	if _, err := a.local.RegisterAll(specs); err != nil {
		a.bus.agents.Del(a.id)
		return err
	}
	if _, err := a.bus.global.RegisterAll(specs); err != nil {
		a.local.UnregisterOwner(a.id)
		a.bus.agents.Del(a.id)
		return err
	}
	a.registered = true

	a.bus.logger.Debug("agent registered",
		slogx.AgentID(a.id),
		slog.Any("bindings", a.bindings.Names()),
	)
	return nil
}

// On adds a handler after construction. Like declared bindings it is registered
// in the local hub and on the global bus and runs once per event.
func (a *Agent) On(name, pattern string, handler events.HandlerFunc) (*Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed.Load() {
		return nil, ErrAgentDisposed
	}
	if name == "" {
		name = pattern
	}
	spec := registry.Spec{
		Pattern: pattern,
		Handler: handler,
		Owner:   a.id,
		Binding: a.id + "/" + name + "/" + uuidx.Prefixed("dyn"),
	}

	local, err := a.local.Register(spec)
	if err != nil {
		return nil, err
	}
	global, err := a.bus.global.Register(spec)
	if err != nil {
		a.local.Unregister(local.ID)
		return nil, err
	}
	return newSubscription(local, func() {
		a.local.Unregister(local.ID)
		a.bus.global.Unregister(global.ID)
	}), nil
}

// Emit publishes an event from this agent. Handlers in the agent's local hub
// are resolved first, then handlers on the global bus; each handler runs at
// most once. Emit never blocks on handlers. A disposed agent drops the event.
func (a *Agent) Emit(ctx context.Context, name string, payload map[string]any) {
	a.Publish(ctx, events.New(name, events.Payload(payload).Clone()))
}

// EmitValue is Emit for payloads given as a struct or any other JSON encodable
// value.
func (a *Agent) EmitValue(ctx context.Context, name string, v any) error {
	payload, err := events.PayloadOf(v)
	if err != nil {
		return err
	}
	a.Publish(ctx, events.New(name, payload))
	return nil
}

// EmitTargets expands the payload over the targets and publishes the resulting
// events from this agent in declared order.
func (a *Agent) EmitTargets(ctx context.Context, payload map[string]any, targets ...events.Target) {
	for _, ev := range events.Expand(payload, targets) {
		a.Publish(ctx, ev)
	}
}

// Publish routes a prepared event from this agent.
func (a *Agent) Publish(ctx context.Context, ev events.Event) {
	if a.disposed.Load() {
		a.bus.logger.WarnContext(ctx, "event dropped", slogx.Event(ev.Name), slogx.AgentID(a.id), slogx.Error(ErrAgentDisposed))
		return
	}
	ev.Source = a.id
	a.bus.route(ctx, a.local, ev)
}

// Decide evaluates a decision with the bus evaluator and, when it fires, emits
// its handler targets from this agent.
func (a *Agent) Decide(ctx context.Context, d decision.Decision) (bool, error) {
	return a.bus.gate.EvaluateAndDispatch(ctx, a, d)
}

// Dispose removes every handler of the agent from its local hub and the global
// bus and frees its id. Handlers already dispatched still run. Dispose is
// idempotent.
func (a *Agent) Dispose() {
	if !a.disposed.CompareAndSwap(false, true) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := a.local.UnregisterOwner(a.id)
	removed += a.bus.global.UnregisterOwner(a.id)
	if a.registered {
		a.bus.agents.Del(a.id)
	}
	a.bus.logger.Debug("agent disposed", slogx.AgentID(a.id), slog.Int("removed", removed))
}

// Disposed reports whether Dispose has been called.
func (a *Agent) Disposed() bool {
	return a.disposed.Load()
}
