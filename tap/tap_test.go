package tap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/strix"
	"github.com/casualjim/strix/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T, options ...strix.BusOption) *strix.Bus {
	t.Helper()
	b := strix.NewBus(options...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

func settle(t *testing.T, b *strix.Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
}

type memorySink struct {
	mu   sync.Mutex
	seen []events.Event
}

func (m *memorySink) Send(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, ev)
	return nil
}

func (m *memorySink) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.seen))
	for _, ev := range m.seen {
		out = append(out, ev.Name)
	}
	return out
}

func TestAttach(t *testing.T) {
	b := newBus(t)
	sink := &memorySink{}

	tp, err := Attach(b, sink, "order.any", "any.failed")
	require.NoError(t, err)
	assert.Equal(t, []string{"order.any", "any.failed"}, tp.Patterns())

	b.Emit(context.Background(), "order.placed", nil)
	b.Emit(context.Background(), "payment.failed", nil)
	b.Emit(context.Background(), "payment.settled", nil)
	settle(t, b)
	assert.ElementsMatch(t, []string{"order.placed", "payment.failed"}, sink.names())

	tp.Detach()
	b.Emit(context.Background(), "order.shipped", nil)
	settle(t, b)
	assert.Len(t, sink.names(), 2)
}

func TestAttach_Errors(t *testing.T) {
	b := newBus(t)

	_, err := Attach(b, nil, "a")
	assert.Error(t, err)
	_, err = Attach(b, &memorySink{})
	assert.Error(t, err)

	_, err = Attach(b, &memorySink{}, "a.b", "a..b")
	assert.ErrorIs(t, err, strix.ErrInvalidPattern)
	assert.Zero(t, b.Stats().Subscriptions)
}

func TestAttach_SinkFailureIsReported(t *testing.T) {
	failures := make(chan *strix.HandlerExecutionError, 1)
	b := newBus(t, strix.OnHandlerError(func(err *strix.HandlerExecutionError) { failures <- err }))

	_, err := Attach(b, SinkFunc(func(context.Context, events.Event) error {
		return errors.New("downstream unavailable")
	}), "x")
	require.NoError(t, err)

	b.Emit(context.Background(), "x", nil)
	settle(t, b)

	select {
	case herr := <-failures:
		assert.Equal(t, "x", herr.Event)
		assert.EqualError(t, herr.Err, "downstream unavailable")
	default:
		t.Fatal("sink failure was not reported")
	}
}
