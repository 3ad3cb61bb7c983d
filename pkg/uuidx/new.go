// Package uuidx generates the time-ordered identifiers used for events,
// subscriptions and agents.
package uuidx

import (
	"strings"

	"github.com/google/uuid"
)

// New generates a new version 7 UUID. It panics if the generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new version 7 UUID and returns its canonical string form.
func NewString() string {
	return New().String()
}

// Prefixed returns a new identifier of the form "<prefix>_<uuid without dashes>".
// Prefixes make ids in logs self-describing, e.g. "sub_0192..." or "agent_0192...".
func Prefixed(prefix string) string {
	id := strings.ReplaceAll(NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
