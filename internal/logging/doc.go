// Package logging wires log/slog with songforge conventions: a console
// handler rendering component-prefixed key=value lines, a JSON handler for
// machine consumption, multi-destination output (stdout plus a log file),
// attr helper wrappers, and context-derived correlation fields.
package logging
