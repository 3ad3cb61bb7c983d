// Package timer emits a completion event after a bounded random delay.
//
// Timers are ordinary event producers: a handler asks for a timer and, once it
// fires, the completion event is emitted through the bus like any other. Local
// keeps timers in process; Temporal runs each timer as a durable workflow so it
// survives restarts.
package timer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/namespace"
)

// ElapsedKey is added to the completion payload with the actual delay in milliseconds.
const ElapsedKey = "elapsed_ms"

var (
	// ErrInvalidRequest is wrapped by every request validation error.
	ErrInvalidRequest = errors.New("invalid timer request")
	// ErrStopped is returned when scheduling on a stopped timer service.
	ErrStopped = errors.New("timer service stopped")
)

// Emitter publishes completion events. *strix.Bus and *strix.Agent implement it.
type Emitter interface {
	Emit(ctx context.Context, name string, payload map[string]any)
}

// Request asks for Completion to be emitted after a delay drawn uniformly from
// [Min, Max].
type Request struct {
	Min        time.Duration  `json:"min"`
	Max        time.Duration  `json:"max"`
	Completion string         `json:"completion"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// After requests a fixed delay.
func After(d time.Duration, completion string, payload map[string]any) Request {
	return Request{Min: d, Max: d, Completion: completion, Payload: payload}
}

// Validate checks the bounds and the completion event name.
func (r Request) Validate() error {
	var errs []error
	if r.Min < 0 {
		errs = append(errs, fmt.Errorf("%w: min %s is negative", ErrInvalidRequest, r.Min))
	}
	if r.Max < r.Min {
		errs = append(errs, fmt.Errorf("%w: max %s is below min %s", ErrInvalidRequest, r.Max, r.Min))
	}
	if _, err := namespace.ParsePath(r.Completion); err != nil {
		errs = append(errs, fmt.Errorf("%w: completion: %w", ErrInvalidRequest, err))
	}
	return errors.Join(errs...)
}

// Delay draws the delay for the request.
func (r Request) Delay() time.Duration {
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	return r.Min + rand.N(span+1)
}

// completionPayload copies the request payload and records the elapsed time.
func completionPayload(payload map[string]any, elapsed time.Duration) map[string]any {
	out := events.Payload(payload).Clone()
	out[ElapsedKey] = elapsed.Milliseconds()
	return out
}
