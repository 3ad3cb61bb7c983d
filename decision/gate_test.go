package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/strix/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) EmitTargets(ctx context.Context, payload map[string]any, targets ...events.Target) {
	m.Called(ctx, payload, targets)
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls [][]events.Event
}

func (r *recordingEmitter) EmitTargets(_ context.Context, payload map[string]any, targets ...events.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, events.Expand(payload, targets))
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		for _, ev := range c {
			out = append(out, ev.Name)
		}
	}
	return out
}

func decisionWith(p Polarity) Decision {
	return Decision{
		Context:  "support ticket",
		Evaluate: "is the customer angry?",
		Data:     map[string]any{"ticket": "T-1"},
		Handlers: []events.Target{events.Bare("x.y"), events.With("x.z", map[string]any{"escalate": true})},
		Polarity: p,
	}
}

func TestGate_Polarity(t *testing.T) {
	tests := []struct {
		name     string
		polarity Polarity
		verdict  bool
		wantFire bool
	}{
		{"positive true fires", Positive, true, true},
		{"positive false stays silent", Positive, false, false},
		{"negative false fires", Negative, false, true},
		{"negative true stays silent", Negative, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := &recordingEmitter{}
			g := NewGate(Static(tt.verdict))

			fired, err := g.EvaluateAndDispatch(context.Background(), em, decisionWith(tt.polarity))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFire, fired)

			if tt.wantFire {
				assert.Equal(t, []string{"x.y", "x.z"}, em.names())
				em.mu.Lock()
				assert.Equal(t, events.Payload{"ticket": "T-1", "escalate": true}, em.calls[0][1].Payload)
				em.mu.Unlock()
			} else {
				assert.Empty(t, em.names())
			}
		})
	}
}

func TestGate_PassesQueryToEvaluator(t *testing.T) {
	ev := NewScripted(true)
	em := &mockEmitter{}
	d := decisionWith(Positive)
	em.On("EmitTargets", mock.Anything, d.Data, d.Handlers).Once()

	fired, err := NewGate(ev).EvaluateAndDispatch(context.Background(), em, d)
	require.NoError(t, err)
	assert.True(t, fired)
	em.AssertExpectations(t)

	require.Len(t, ev.Queries(), 1)
	q := ev.Queries()[0]
	assert.Equal(t, "support ticket", q.Context)
	assert.Equal(t, "is the customer angry?", q.Evaluate)
	assert.Equal(t, map[string]any{"ticket": "T-1"}, q.Data)
}

func TestGate_FailsClosed(t *testing.T) {
	tests := []struct {
		name      string
		evaluator Evaluator
		options   []GateOption
	}{
		{
			name: "evaluator error",
			evaluator: Func(func(context.Context, Query) (bool, error) {
				return true, errors.New("service unavailable")
			}),
		},
		{
			name: "evaluator panic",
			evaluator: Func(func(context.Context, Query) (bool, error) {
				panic("broken evaluator")
			}),
		},
		{
			name: "evaluator timeout",
			evaluator: Func(func(ctx context.Context, _ Query) (bool, error) {
				time.Sleep(200 * time.Millisecond)
				return true, nil
			}),
			options: []GateOption{WithTimeout(10 * time.Millisecond)},
		},
		{
			name:      "script exhausted",
			evaluator: NewScripted(),
		},
		{
			name: "no evaluator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, p := range []Polarity{Positive, Negative} {
				em := &mockEmitter{}
				g := NewGate(tt.evaluator, tt.options...)

				fired, err := g.EvaluateAndDispatch(context.Background(), em, decisionWith(p))
				assert.False(t, fired)
				var failure *EvaluatorFailure
				require.ErrorAs(t, err, &failure)
				assert.Equal(t, "is the customer angry?", failure.Evaluate)
				em.AssertNotCalled(t, "EmitTargets", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestGate_TimeoutIsDeadlineExceeded(t *testing.T) {
	g := NewGate(Func(func(ctx context.Context, _ Query) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}), WithTimeout(5*time.Millisecond))

	_, err := g.Decide(context.Background(), decisionWith(Positive))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_RejectsInvalidDecision(t *testing.T) {
	em := &mockEmitter{}
	g := NewGate(Static(true))

	d := decisionWith("MAYBE")
	fired, err := g.EvaluateAndDispatch(context.Background(), em, d)
	assert.False(t, fired)
	assert.ErrorIs(t, err, ErrInvalidDecision)

	d = decisionWith(Positive)
	d.Handlers = []events.Target{{}}
	_, err = g.Decide(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidDecision)
	em.AssertNotCalled(t, "EmitTargets", mock.Anything, mock.Anything, mock.Anything)
}

func TestGate_NoHandlersFiresNothing(t *testing.T) {
	em := &mockEmitter{}
	d := decisionWith(Positive)
	d.Handlers = nil

	fired, err := NewGate(Static(true)).EvaluateAndDispatch(context.Background(), em, d)
	require.NoError(t, err)
	assert.True(t, fired)
	em.AssertNotCalled(t, "EmitTargets", mock.Anything, mock.Anything, mock.Anything)
}

func TestParsePolarity(t *testing.T) {
	p, err := ParsePolarity("positive")
	require.NoError(t, err)
	assert.Equal(t, Positive, p)

	p, err = ParsePolarity(" NEGATIVE ")
	require.NoError(t, err)
	assert.Equal(t, Negative, p)

	_, err = ParsePolarity("sideways")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	assert.False(t, Polarity("").Fires(true))
	assert.False(t, Polarity("").Fires(false))
}
