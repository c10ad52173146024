// Package uuidx generates time ordered identifiers for messages, responses
// and tool calls.
package uuidx

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a version 7 UUID. It panics when the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns New formatted in the canonical dashed form.
func NewString() string {
	return New().String()
}

// Prefixed returns an identifier like "msg-0192f0c6a3b87c4e9f1d2a3b4c5d6e7f":
// the prefix, a dash and the dashless hex form of a new UUID. An empty prefix
// yields the bare hex form.
func Prefixed(prefix string) string {
	id := strings.ReplaceAll(NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
