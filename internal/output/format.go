// Package output provides output formatting for the runcheck CLI.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format is how command results are written.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Color modes accepted by Resolve.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrUnknownFormat is returned by ParseFormat for anything but text, json or auto.
var ErrUnknownFormat = errors.New("unknown output format")

// Formatter renders command results for one invocation: as a JSON document
// for scripts, or through a text callback for people.
type Formatter struct {
	format Format
	color  bool
}

// NewFormatter returns a formatter for an already resolved format.
// FormatAuto is treated as text.
func NewFormatter(format Format, color bool) *Formatter {
	if format != FormatJSON {
		format = FormatText
	}
	return &Formatter{format: format, color: color}
}

// Resolve picks the format and color mode for output written to w.
// In auto mode terminals get text and everything else gets JSON, and color
// follows the terminal unless NO_COLOR is set.
func Resolve(w io.Writer, format, color string) (*Formatter, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	tty := isTerminal(w)
	if f == FormatAuto {
		f = FormatJSON
		if tty {
			f = FormatText
		}
	}

	var colored bool
	switch strings.ToLower(strings.TrimSpace(color)) {
	case ColorAlways:
		colored = true
	case ColorNever:
	default:
		colored = tty && os.Getenv("NO_COLOR") == ""
	}
	return &Formatter{format: f, color: colored}, nil
}

// ParseFormat parses a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatText, FormatJSON:
		return f, nil
	default:
		return FormatAuto, fmt.Errorf("%w %q (want text, json or auto)", ErrUnknownFormat, s)
	}
}

// Format returns the resolved format.
func (f *Formatter) Format() Format {
	return f.format
}

// Color reports whether decorated output is enabled.
func (f *Formatter) Color() bool {
	return f.color
}

// Emit writes v as a JSON document, or calls text when the format is text.
// A nil text callback falls back to JSON.
func (f *Formatter) Emit(w io.Writer, v any, text func(io.Writer) error) error {
	if f.format == FormatJSON || text == nil {
		return WriteJSON(w, v)
	}
	return text(w)
}

// WriteJSON encodes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
}
