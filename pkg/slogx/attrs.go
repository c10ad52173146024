// Package slogx provides slog attributes shared by every package of the module.
package slogx

import (
	"log/slog"
)

// KeyLoggerName is the attribute key holding the name of the component that
// logged a record.
const KeyLoggerName = "logger"

// Error returns an "error" attribute with the message of err. A nil error
// yields an empty message.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// LoggerName names the component that owns a logger, e.g. "weft.wire".
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
