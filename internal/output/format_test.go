package output_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurun/runcheck/internal/output"
)

type sessionDoc struct {
	Authenticated bool   `json:"authenticated"`
	Store         string `json:"store"`
}

func TestFormatter_Emit(t *testing.T) {
	t.Parallel()

	doc := sessionDoc{Authenticated: true, Store: "keyring"}
	text := func(w io.Writer) error {
		_, err := io.WriteString(w, "signed in ("+doc.Store+")\n")
		return err
	}

	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatJSON, false)
	require.NoError(t, f.Emit(&buf, doc, text))
	assert.JSONEq(t, `{"authenticated":true,"store":"keyring"}`, buf.String())
	assert.Contains(t, buf.String(), "\n  \"store\"", "indented")

	buf.Reset()
	f = output.NewFormatter(output.FormatText, false)
	require.NoError(t, f.Emit(&buf, doc, text))
	assert.Equal(t, "signed in (keyring)\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Emit(&buf, doc, nil))
	assert.JSONEq(t, `{"authenticated":true,"store":"keyring"}`, buf.String(), "no text rendering falls back to JSON")
}

func TestNewFormatter_AutoIsText(t *testing.T) {
	t.Parallel()

	f := output.NewFormatter(output.FormatAuto, true)
	assert.Equal(t, output.FormatText, f.Format())
	assert.True(t, f.Color())
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]output.Format{
		"json":  output.FormatJSON,
		" JSON": output.FormatJSON,
		"text":  output.FormatText,
		"Text ": output.FormatText,
		"auto":  output.FormatAuto,
		"":      output.FormatAuto,
	}
	for in, want := range tests {
		got, err := output.ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := output.ParseFormat("yaml")
	require.ErrorIs(t, err, output.ErrUnknownFormat)
	assert.Contains(t, err.Error(), `"yaml"`)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	f, err := output.Resolve(&buf, "auto", "auto")
	require.NoError(t, err)
	assert.Equal(t, output.FormatJSON, f.Format(), "non-terminal writers get JSON")
	assert.False(t, f.Color(), "buffers are not terminals")

	f, err = output.Resolve(&buf, "text", "always")
	require.NoError(t, err)
	assert.Equal(t, output.FormatText, f.Format())
	assert.True(t, f.Color())

	file, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	f, err = output.Resolve(file, "", "ALWAYS")
	require.NoError(t, err)
	assert.Equal(t, output.FormatJSON, f.Format(), "regular files are not terminals")
	assert.True(t, f.Color())

	f, err = output.Resolve(os.Stdout, "json", "never")
	require.NoError(t, err)
	assert.False(t, f.Color())

	_, err = output.Resolve(&buf, "xml", "auto")
	require.ErrorIs(t, err, output.ErrUnknownFormat)
}

//nolint:paralleltest // t.Setenv
func TestResolve_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	f, err := output.Resolve(os.Stdout, "text", "auto")
	require.NoError(t, err)
	assert.False(t, f.Color())

	f, err = output.Resolve(os.Stdout, "text", "always")
	require.NoError(t, err)
	assert.True(t, f.Color(), "an explicit mode wins over NO_COLOR")
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, output.WriteJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
	require.ErrorIs(t, output.WriteJSON(failingWriter{}, 1), errWrite)
}
