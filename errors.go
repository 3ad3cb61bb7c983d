package strix

import (
	"errors"
	"fmt"

	"github.com/casualjim/strix/decision"
	"github.com/casualjim/strix/internal/dispatch"
	"github.com/casualjim/strix/namespace"
)

// PatternError reports a malformed event name or subscription pattern.
type PatternError = namespace.PatternError

// HandlerExecutionError reports a handler that failed or panicked. It is logged
// and passed to the OnHandlerError hook, never returned to an emitter.
type HandlerExecutionError = dispatch.HandlerExecutionError

// EvaluatorFailure reports a decision whose evaluator could not produce a verdict.
type EvaluatorFailure = decision.EvaluatorFailure

var (
	// ErrInvalidPattern is wrapped by every PatternError.
	ErrInvalidPattern = namespace.ErrInvalidPattern
	// ErrAlreadyRegistered is wrapped by every AlreadyRegisteredError.
	ErrAlreadyRegistered = errors.New("agent already registered")
	// ErrAgentDisposed is returned when registering a disposed agent.
	ErrAgentDisposed = errors.New("agent is disposed")
	// ErrBusClosed is returned when registering on a closed bus.
	ErrBusClosed = errors.New("bus is closed")
	// ErrDuplicateBinding is reported by Bindings.Validate for a name declared twice.
	ErrDuplicateBinding = errors.New("duplicate binding name")
	// ErrChainTooDeep is logged when an emission exceeds the configured chain depth.
	ErrChainTooDeep = errors.New("event chain too deep")
)

// AlreadyRegisteredError reports an agent id that is already registered on the bus.
type AlreadyRegisteredError struct {
	AgentID string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyRegistered, e.AgentID)
}

func (e *AlreadyRegisteredError) Unwrap() error {
	return ErrAlreadyRegistered
}
