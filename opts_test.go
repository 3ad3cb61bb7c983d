package strix

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvWorkers, "2")
	t.Setenv(EnvQueueSize, "16")
	t.Setenv(EnvMaxChainDepth, "5")

	b := newTestBus(t, FromEnv())
	assert.Equal(t, 2, b.workers)
	assert.Equal(t, 16, b.queueSize)
	assert.Equal(t, 5, b.maxDepth)
}

func TestFromEnv_ExplicitOptionsWinWhenLater(t *testing.T) {
	t.Setenv(EnvWorkers, "2")

	b := newTestBus(t, FromEnv(), Workers(3))
	assert.Equal(t, 3, b.workers)
}

func TestFromEnv_Unset(t *testing.T) {
	t.Setenv(EnvWorkers, "")

	b := newTestBus(t, Workers(7), FromEnv())
	assert.Equal(t, 7, b.workers)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"not a number", EnvWorkers, "many"},
		{"negative", EnvQueueSize, "-1"},
		{"depth", EnvMaxChainDepth, "deep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			assert.Panics(t, func() { NewBus(FromEnv()) })
		})
	}
}
