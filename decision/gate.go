package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/fogfish/opts"
)

// Emitter publishes the events produced by expanding handler targets.
type Emitter interface {
	EmitTargets(ctx context.Context, payload map[string]any, targets ...events.Target)
}

// Gate evaluates decisions and dispatches their handlers.
type Gate struct {
	evaluator Evaluator
	timeout   time.Duration
	logger    *slog.Logger
}

// GateOption configures a Gate.
type GateOption = opts.Option[Gate]

var (
	// WithTimeout bounds each evaluation. A timed out evaluation is a failure.
	WithTimeout = opts.ForName[Gate, time.Duration]("timeout")
	// WithLogger sets the logger failures are reported to.
	WithLogger = opts.ForName[Gate, *slog.Logger]("logger")
)

// NewGate creates a gate backed by the evaluator.
func NewGate(evaluator Evaluator, options ...GateOption) *Gate {
	g := &Gate{
		evaluator: evaluator,
		logger:    slog.Default().With(slogx.LoggerName("strix.decision")),
	}
	if err := opts.Apply(g, options); err != nil {
		panic(err)
	}
	return g
}

// Evaluator returns the evaluator backing the gate.
func (g *Gate) Evaluator() Evaluator {
	return g.evaluator
}

// Decide asks the evaluator and reports whether the decision's handlers should
// fire. Any failure to obtain a verdict returns an *EvaluatorFailure and false.
func (g *Gate) Decide(ctx context.Context, d Decision) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}
	if g.evaluator == nil {
		return false, &EvaluatorFailure{Evaluate: d.Evaluate, Err: errors.New("no evaluator configured")}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	verdict, err := g.evaluate(ctx, Query{Context: d.Context, Evaluate: d.Evaluate, Data: d.Data})
	if err != nil {
		return false, &EvaluatorFailure{Evaluate: d.Evaluate, Err: err}
	}
	return d.Polarity.Fires(verdict), nil
}

// EvaluateAndDispatch decides and, when the verdict agrees with the polarity,
// emits one event per handler target with the decision's data as payload.
// Failures are logged and nothing is emitted. It reports whether handlers fired.
func (g *Gate) EvaluateAndDispatch(ctx context.Context, emitter Emitter, d Decision) (bool, error) {
	fire, err := g.Decide(ctx, d)
	if err != nil {
		g.logger.WarnContext(ctx, "decision not dispatched",
			slog.String("evaluate", d.Evaluate),
			slog.String("polarity", string(d.Polarity)),
			slogx.Error(err),
		)
		return false, err
	}
	if !fire {
		g.logger.DebugContext(ctx, "decision did not fire",
			slog.String("evaluate", d.Evaluate),
			slog.String("polarity", string(d.Polarity)),
		)
		return false, nil
	}
	if len(d.Handlers) > 0 {
		emitter.EmitTargets(ctx, d.Data, d.Handlers...)
	}
	return true, nil
}

// evaluate runs the evaluator in its own goroutine so a stuck evaluator that
// ignores ctx still yields to the timeout, and so a panic becomes an error.
func (g *Gate) evaluate(ctx context.Context, q Query) (bool, error) {
	type result struct {
		verdict bool
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("evaluator panic: %v", r)}
			}
		}()
		v, err := g.evaluator.Evaluate(ctx, q)
		done <- result{verdict: v, err: err}
	}()

	select {
	case r := <-done:
		return r.verdict, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
