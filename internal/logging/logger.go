// Package logging provides the stderr logger used by credsync.
//
// Secret material must never reach a log line. Callers wrap anything
// sensitive in the Secret type, and free-text messages that may embed
// sensitive strings go through Redact before printing.
package logging

import (
	"fmt"
	"os"
	"strings"
)

// Logger writes human-readable progress to stderr.
type Logger struct {
	debug   bool
	noColor bool
	secrets []string
}

// New creates a logger. Debug messages are suppressed unless debug is set.
func New(debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
	}
}

// Protect registers values that must never appear in output. Every
// message printed by this logger is scrubbed of them first.
func (l *Logger) Protect(values ...string) {
	for _, v := range values {
		if v != "" {
			l.secrets = append(l.secrets, v)
		}
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("\033[32m✓\033[0m", "✓", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("\033[33m⚠\033[0m", "⚠", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("\033[31m✗\033[0m", "✗", format, args...)
}

// Debug logs a debug message if debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("\033[36m[DEBUG]\033[0m", "[DEBUG]", format, args...)
}

func (l *Logger) emit(prefix, plainPrefix, format string, args ...interface{}) {
	msg := Redact(fmt.Sprintf(format, args...), l.secrets)
	if l.noColor {
		fmt.Fprintf(os.Stderr, "%s %s\n", plainPrefix, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", prefix, msg)
}

// Secret marks a value that must be redacted wherever it is formatted.
type Secret string

// String implements fmt.Stringer, always returning a redacted value.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces each of the given sensitive values in s with [REDACTED].
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 { // short fragments would redact too eagerly
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
