package output

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// Placeholder is printed for values that are unset.
const Placeholder = "-"

// Fields is an ordered list of label/value lines printed in two aligned
// columns: session status, user profiles, token claims and config keys.
type Fields struct {
	title     []string
	rows      [][2]string
	separator string
}

// NewFields creates an empty list separated by two spaces.
func NewFields() *Fields {
	return &Fields{separator: "  "}
}

// Title adds a header line, underlined with dashes, above the rows.
func (f *Fields) Title(label, value string) *Fields {
	f.title = []string{label, value}
	return f
}

// Separator sets the text printed between label and value.
func (f *Fields) Separator(sep string) *Fields {
	f.separator = sep
	return f
}

// Add appends a line. Booleans print as yes/no, times in local RFC 3339, and
// empty strings, nil values and zero times as Placeholder.
func (f *Fields) Add(label string, value any) *Fields {
	f.rows = append(f.rows, [2]string{label, formatValue(value)})
	return f
}

// AddIf appends a line only when ok is true.
func (f *Fields) AddIf(ok bool, label string, value any) *Fields {
	if ok {
		f.Add(label, value)
	}
	return f
}

// Len returns the number of lines, not counting the title.
func (f *Fields) Len() int {
	return len(f.rows)
}

// WriteTo renders the list.
func (f *Fields) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, f.String())
	return int64(n), err
}

// String renders the list. An empty list renders as nothing, even with a title.
func (f *Fields) String() string {
	if len(f.rows) == 0 {
		return ""
	}

	labelWidth, valueWidth := 0, 0
	if f.title != nil {
		labelWidth = utf8.RuneCountInString(f.title[0])
		valueWidth = utf8.RuneCountInString(f.title[1])
	}
	for _, r := range f.rows {
		labelWidth = max(labelWidth, utf8.RuneCountInString(r[0]))
		valueWidth = max(valueWidth, utf8.RuneCountInString(r[1]))
	}

	var sb strings.Builder
	line := func(label, value string) {
		pad := strings.Repeat(" ", labelWidth-utf8.RuneCountInString(label))
		sb.WriteString(strings.TrimRight(label+pad+f.separator+value, " "))
		sb.WriteByte('\n')
	}
	if f.title != nil {
		line(f.title[0], f.title[1])
		line(strings.Repeat("-", labelWidth), strings.Repeat("-", valueWidth))
	}
	for _, r := range f.rows {
		line(r[0], r[1])
	}
	return sb.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return Placeholder
	case string:
		if val == "" {
			return Placeholder
		}
		return val
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case time.Time:
		if val.IsZero() {
			return Placeholder
		}
		return val.Local().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return Placeholder
		}
		return formatValue(*val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
