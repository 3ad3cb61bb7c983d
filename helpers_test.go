package strix

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, options ...BusOption) *Bus {
	t.Helper()
	b := NewBus(options...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

func settle(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
}

// recorder collects the events its handlers receive.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	labels []string
}

func (r *recorder) handler(label string) events.HandlerFunc {
	return func(_ context.Context, ev events.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		r.labels = append(r.labels, label)
		return nil
	}
}

func (r *recorder) received() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
