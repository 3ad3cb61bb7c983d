package slogx

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	attr := Error(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	attr = Error(nil)
	assert.Equal(t, "", attr.Value.String())
}

func TestStringer(t *testing.T) {
	attr := Stringer("elapsed", 2*time.Second)
	assert.Equal(t, "elapsed", attr.Key)
	assert.Equal(t, "2s", attr.Value.String())
}

func TestByteString(t *testing.T) {
	attr := ByteString("body", []byte(`{"a":1}`))
	assert.Equal(t, slog.KindString, attr.Value.Kind())
	assert.Equal(t, `{"a":1}`, attr.Value.String())
}

func TestDomainAttrs(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"logger", LoggerName("strix.bus"), KeyLoggerName, "strix.bus"},
		{"event", Event("user.login.input"), KeyEvent, "user.login.input"},
		{"event id", EventID("abc"), KeyEventID, "abc"},
		{"pattern", Pattern("user.any.input"), KeyPattern, "user.any.input"},
		{"agent", AgentID("agent-1"), KeyAgentID, "agent-1"},
		{"no agent", AgentID(""), KeyAgentID, "-"},
		{"subscription", SubscriptionID("sub-1"), KeySubscriptionID, "sub-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.wantVal, tt.attr.Value.String())
		})
	}
}
