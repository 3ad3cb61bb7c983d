// Package tap mirrors bus events to external systems.
//
// A tap is a global observer: it subscribes a Sink to one or more patterns and
// forwards every matching event. Taps only publish; nothing read from the
// external system is routed back into the bus.
package tap

import (
	"context"
	"errors"
	"fmt"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/events"
)

// Sink receives mirrored events. A Send error is reported like any handler failure.
type Sink interface {
	Send(ctx context.Context, ev events.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev events.Event) error

func (f SinkFunc) Send(ctx context.Context, ev events.Event) error {
	return f(ctx, ev)
}

// Tap is an attached sink.
type Tap struct {
	subs []*strix.Subscription
}

// Attach subscribes the sink to every pattern on the bus. Either every pattern
// is subscribed or none is.
func Attach(bus *strix.Bus, sink Sink, patterns ...string) (*Tap, error) {
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if len(patterns) == 0 {
		return nil, errors.New("at least one pattern is required")
	}

	t := &Tap{}
	for _, pattern := range patterns {
		sub, err := bus.On(pattern, sink.Send)
		if err != nil {
			t.Detach()
			return nil, fmt.Errorf("tap %q: %w", pattern, err)
		}
		t.subs = append(t.subs, sub)
	}
	return t, nil
}

// Patterns returns the patterns the tap is subscribed to.
func (t *Tap) Patterns() []string {
	out := make([]string, 0, len(t.subs))
	for _, sub := range t.subs {
		out = append(out, sub.Pattern())
	}
	return out
}

// Detach unsubscribes the sink.
func (t *Tap) Detach() {
	for _, sub := range t.subs {
		sub.Unsubscribe()
	}
}
