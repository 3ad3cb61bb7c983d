package events

import (
	"context"
	"fmt"
	"time"

	"github.com/casualjim/strix/pkg/jsonx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/go-openapi/strfmt"
)

// Payload is the key/value body of an event.
type Payload map[string]any

// Clone returns a deep copy of the payload. A nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return Payload(jsonx.CloneMap(p))
}

// PayloadOf converts a Go value to a payload. Maps are deep-copied; structs and
// other values go through their JSON encoding, so json tags name the keys.
func PayloadOf(v any) (Payload, error) {
	switch tv := v.(type) {
	case nil:
		return Payload{}, nil
	case Payload:
		return tv.Clone(), nil
	}
	m, err := jsonx.ToDynamicJSON(v)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return Payload(m), nil
}

// Merge returns a copy of the payload with every key of extra applied on top.
// Keys from extra win on conflicts.
func (p Payload) Merge(extra map[string]any) Payload {
	return Payload(jsonx.Merge(p, extra))
}

// Event is a named occurrence carrying a payload.
type Event struct {
	ID        string
	Name      string
	Payload   Payload
	Timestamp strfmt.DateTime
	// Source is the id of the agent that emitted the event, empty when the event
	// was emitted on the bus directly.
	Source string
	// CausedBy is the id of the event whose handler emitted this one.
	CausedBy string
	// Depth is the number of handler hops between this event and the emission that
	// started the chain. Events emitted outside any handler have depth 0.
	Depth int
}

// New creates an event with a fresh id and the current time.
func New(name string, payload map[string]any) Event {
	return Event{
		ID:        uuidx.NewString(),
		Name:      name,
		Payload:   Payload(payload),
		Timestamp: strfmt.DateTime(time.Now().UTC()),
	}
}

// Clone returns a copy of the event with a deep-copied payload.
func (e Event) Clone() Event {
	e.Payload = e.Payload.Clone()
	return e
}

// HandlerFunc reacts to an event. A returned error is logged by the dispatcher and
// never reaches the emitter.
type HandlerFunc func(ctx context.Context, ev Event) error

type eventKey struct{}

// WithEvent returns a context carrying the event currently being handled.
func WithEvent(ctx context.Context, ev Event) context.Context {
	return context.WithValue(ctx, eventKey{}, ev)
}

// FromContext returns the event being handled in ctx, if any.
func FromContext(ctx context.Context) (Event, bool) {
	ev, ok := ctx.Value(eventKey{}).(Event)
	return ev, ok
}

// Stamp fills in the causality fields of ev from the event being handled in ctx
// and assigns an id and timestamp when they are missing.
func Stamp(ctx context.Context, ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuidx.NewString()
	}
	if time.Time(ev.Timestamp).IsZero() {
		ev.Timestamp = strfmt.DateTime(time.Now().UTC())
	}
	if parent, ok := FromContext(ctx); ok {
		ev.CausedBy = parent.ID
		ev.Depth = parent.Depth + 1
	}
	if ev.Payload == nil {
		ev.Payload = Payload{}
	}
	return ev
}
