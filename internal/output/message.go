package output

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Message prefixes.
const (
	prefixInfo    = "ℹ️  "
	prefixWarn    = "⚠️  "
	prefixSuccess = "✅ "

	plainInfo    = "info: "
	plainWarn    = "warning: "
	plainSuccess = ""
)

//nolint:gochecknoglobals // Process-wide presentation switch
var plain atomic.Bool

// SetDecorated switches message prefixes between emoji and plain text.
// Pass Formatter.Color for the target stream.
func SetDecorated(decorated bool) {
	plain.Store(!decorated)
}

func prefix(decorated, undecorated string) string {
	if plain.Load() {
		return undecorated
	}
	return decorated
}

// Info writes an informational message with an info prefix.
func Info(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, prefix(prefixInfo, plainInfo)+msg)
}

// Infof writes a formatted informational message.
func Infof(w io.Writer, format string, args ...any) {
	Info(w, fmt.Sprintf(format, args...))
}

// Warn writes a warning message with a warning prefix. Callers pass stderr.
func Warn(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, prefix(prefixWarn, plainWarn)+msg)
}

// Warnf writes a formatted warning message.
func Warnf(w io.Writer, format string, args ...any) {
	Warn(w, fmt.Sprintf(format, args...))
}

// Success writes a success message with a success prefix.
func Success(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, prefix(prefixSuccess, plainSuccess)+msg)
}

// Successf writes a formatted success message.
func Successf(w io.Writer, format string, args ...any) {
	Success(w, fmt.Sprintf(format, args...))
}
