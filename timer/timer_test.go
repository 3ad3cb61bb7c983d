package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type emitted struct {
	ctx     context.Context
	name    string
	payload map[string]any
}

type fakeEmitter struct {
	mu   sync.Mutex
	got  []emitted
	fire chan struct{}
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{fire: make(chan struct{}, 16)}
}

func (f *fakeEmitter) Emit(ctx context.Context, name string, payload map[string]any) {
	f.mu.Lock()
	f.got = append(f.got, emitted{ctx: ctx, name: name, payload: payload})
	f.mu.Unlock()
	f.fire <- struct{}{}
}

func (f *fakeEmitter) events() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.got...)
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"fixed", After(time.Second, "timer.done", nil), false},
		{"range", Request{Min: time.Millisecond, Max: time.Second, Completion: "a.b"}, false},
		{"zero", Request{Completion: "a"}, false},
		{"negative min", Request{Min: -time.Second, Completion: "a"}, true},
		{"inverted", Request{Min: time.Second, Max: time.Millisecond, Completion: "a"}, true},
		{"no completion", Request{Min: time.Second, Max: time.Second}, true},
		{"bad completion", Request{Completion: "a..b"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_Delay(t *testing.T) {
	req := Request{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond, Completion: "a"}
	for i := 0; i < 200; i++ {
		d := req.Delay()
		assert.GreaterOrEqual(t, d, req.Min)
		assert.LessOrEqual(t, d, req.Max)
	}
	assert.Equal(t, time.Second, After(time.Second, "a", nil).Delay())
}

func TestCompletionPayload(t *testing.T) {
	in := map[string]any{"k": "v"}
	out := completionPayload(in, 1500*time.Millisecond)
	assert.Equal(t, map[string]any{"k": "v", ElapsedKey: int64(1500)}, out)
	assert.NotContains(t, in, ElapsedKey)

	assert.Equal(t, map[string]any{ElapsedKey: int64(0)}, completionPayload(nil, 0))
}
