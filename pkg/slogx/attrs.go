package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
// A nil error is rendered as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ByteString creates a slog.Attr with the given key and a string representation of the byte slice value.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

const (
	// KeyLoggerName is the key for the logger name.
	KeyLoggerName = "logger"
	// KeyEvent is the key for an event name.
	KeyEvent = "event"
	// KeyEventID is the key for an event id.
	KeyEventID = "event_id"
	// KeyPattern is the key for a subscription pattern.
	KeyPattern = "pattern"
	// KeyAgentID is the key for the agent that owns a handler or emitted an event.
	KeyAgentID = "agent_id"
	// KeySubscriptionID is the key for a subscription id.
	KeySubscriptionID = "subscription_id"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Event returns an attribute for an event name.
func Event(name string) slog.Attr {
	return slog.String(KeyEvent, name)
}

// EventID returns an attribute for an event id.
func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

// Pattern returns an attribute for a subscription pattern.
func Pattern(pattern string) slog.Attr {
	return slog.String(KeyPattern, pattern)
}

// AgentID returns an attribute for an agent id. Handlers registered directly on the
// bus have no owner, which is rendered as "-".
func AgentID(id string) slog.Attr {
	if id == "" {
		id = "-"
	}
	return slog.String(KeyAgentID, id)
}

// SubscriptionID returns an attribute for a subscription id.
func SubscriptionID(id string) slog.Attr {
	return slog.String(KeySubscriptionID, id)
}
