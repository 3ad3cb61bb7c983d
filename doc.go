/*
Package strix is an in-process, namespace-based publish/subscribe runtime for
event-driven agents.

Agents never call each other. They declare handlers for dot-segmented event
names, emit events, and let the bus route each event to every handler whose
pattern matches. Emission is fire-and-forget: handlers run asynchronously on a
worker pool, each receives its own copy of the payload, and a failing handler
never affects its siblings or the emitter.

The package implements:

  - Namespace patterns: "user.any.input" matches "user.login.input" but not
    "user.login.extra.input"; the "any" segment matches exactly one segment.
  - Automatic registration: an agent's binding table is registered into its
    local hub and the global bus before NewAgent returns.
  - Fan-out with augmentation: one payload becomes one event per handler
    target, optionally merged with per-target extra values.
  - Gated dispatch: a decision asks an evaluator a yes/no question and fires
    its targets only when the verdict matches the decision's polarity.
  - Two-tier routing: an agent's emissions reach its own handlers first and
    then every matching handler on the global bus, each handler at most once.

# Basic Usage

	bus := strix.NewBus(strix.FromEnv())
	defer bus.Close(ctx)

	greeter, err := strix.NewAgent(bus,
		strix.AgentName("greeter"),
		strix.WithBindings(strix.NewBindings(
			strix.On("onLogin", "user.any.input", func(ctx context.Context, ev events.Event) error {
				bus.Emit(ctx, "greeting.sent", map[string]any{"user": ev.Payload["user"]})
				return nil
			}),
		)),
	)
	if err != nil {
		// duplicate agent id or malformed pattern
	}

	greeter.Emit(ctx, "user.login.input", map[string]any{"user": "ada"})

# Binding tables

Binding tables can be written by hand with NewBindings and On, or generated from
annotated methods with cmd/strix-bindgen:

	// strix:on user.any.input
	func (g *Greeter) OnLogin(ctx context.Context, ev events.Event) error { ... }

generates a Bindings method that Bind hands to NewAgent.

# Decisions

	bus := strix.NewBus(strix.WithEvaluator(decision.Lookup{}))
	agent.Decide(ctx, decision.Decision{
		Evaluate: "order.total",
		Data:     payload,
		Handlers: events.MustParseTargets("order.bill", "audit.log { reason: billable }"),
		Polarity: decision.Positive,
	})

# Integration

  - decision/openai evaluates decisions with an OpenAI chat model
  - timer schedules completion events locally or with Temporal durable timers
  - tap mirrors bus traffic to NATS subjects or Redis channels
*/
package strix
