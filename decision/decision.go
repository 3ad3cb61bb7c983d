// Package decision implements gated dispatch: a Decision asks an Evaluator a
// yes/no question about a payload, and its handler targets fire only when the
// answer agrees with the decision's polarity.
//
// Evaluators are strategies. Static, Func, Scripted and Lookup are deterministic
// and suitable for tests and rule-driven flows; the openai subpackage provides a
// generative backend. The gate fails closed: an evaluator error, panic or
// timeout means no handler fires.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/strix/events"
)

// Polarity selects which evaluator answer triggers dispatch.
type Polarity string

const (
	// Positive dispatches when the evaluator returns true.
	Positive Polarity = "POSITIVE"
	// Negative dispatches when the evaluator returns false.
	Negative Polarity = "NEGATIVE"
)

// ParsePolarity parses a polarity name, case-insensitively.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(strings.ToUpper(strings.TrimSpace(s))) {
	case Positive:
		return Positive, nil
	case Negative:
		return Negative, nil
	}
	return "", fmt.Errorf("%w: unknown polarity %q", ErrInvalidDecision, s)
}

// Fires reports whether an evaluator verdict triggers dispatch under this polarity.
func (p Polarity) Fires(verdict bool) bool {
	switch p {
	case Positive:
		return verdict
	case Negative:
		return !verdict
	}
	return false
}

// Decision is a conditional emission.
type Decision struct {
	// Context describes the situation to the evaluator.
	Context string
	// Evaluate is the question the evaluator answers with true or false.
	Evaluate string
	// Data is the payload handed to the evaluator and used for the emitted events.
	Data     map[string]any
	Handlers []events.Target
	Polarity Polarity
}

// ErrInvalidDecision is returned for a decision that cannot be evaluated.
var ErrInvalidDecision = errors.New("invalid decision")

// Validate checks the decision is well formed.
func (d Decision) Validate() error {
	var errs []error
	if d.Polarity != Positive && d.Polarity != Negative {
		errs = append(errs, fmt.Errorf("%w: polarity must be %s or %s, got %q", ErrInvalidDecision, Positive, Negative, d.Polarity))
	}
	for _, h := range d.Handlers {
		if h.Name == "" {
			errs = append(errs, fmt.Errorf("%w: handler target without a name", ErrInvalidDecision))
			break
		}
	}
	return errors.Join(errs...)
}

// Query is what an evaluator is asked.
type Query struct {
	Context  string
	Evaluate string
	Data     map[string]any
}

// Evaluator answers a yes/no question about a payload.
type Evaluator interface {
	Evaluate(ctx context.Context, q Query) (bool, error)
}

// Func adapts a function to the Evaluator interface.
type Func func(ctx context.Context, q Query) (bool, error)

func (f Func) Evaluate(ctx context.Context, q Query) (bool, error) {
	return f(ctx, q)
}

// EvaluatorFailure reports an evaluator that could not produce a verdict. No
// handler fires when it occurs.
type EvaluatorFailure struct {
	Evaluate string
	Err      error
}

func (e *EvaluatorFailure) Error() string {
	return fmt.Sprintf("evaluator failed on %q: %v", e.Evaluate, e.Err)
}

func (e *EvaluatorFailure) Unwrap() error {
	return e.Err
}
