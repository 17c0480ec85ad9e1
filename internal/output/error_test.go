package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurun/runcheck/internal/output"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

var (
	errWrite   = errors.New("write failed")
	errGeneric = errors.New("boom")
)

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errWrite }

func decodeError(t *testing.T, data []byte) output.ErrorOutput {
	t.Helper()
	var out output.ErrorOutput
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestFormatError_Nil(t *testing.T) {
	t.Parallel()

	for _, f := range []output.Format{output.FormatText, output.FormatJSON} {
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, nil, f))
		assert.Empty(t, buf.String())
	}
}

func TestFormatError_Generic(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, errGeneric, output.FormatJSON))
	out := decodeError(t, buf.Bytes())
	assert.Equal(t, "GENERAL_ERROR", out.Error.Code)
	assert.Equal(t, "boom", out.Error.Message)
	assert.Equal(t, rcerr.ExitGeneral, out.Error.ExitCode)

	buf.Reset()
	require.NoError(t, output.FormatError(&buf, errGeneric, output.FormatText))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestFormatError_RunError_JSON(t *testing.T) {
	t.Parallel()

	err := rcerr.WithDetails(rcerr.ErrSessionExpired, map[string]string{"request_id": "abc"})

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatJSON))
	out := decodeError(t, buf.Bytes())

	assert.Equal(t, "SESSION_EXPIRED", out.Error.Code)
	assert.Equal(t, "session expired, please login again", out.Error.Message)
	assert.Equal(t, map[string]string{"request_id": "abc"}, out.Error.Details)
	assert.Contains(t, out.Error.Suggestion, "runcheck login")
	assert.Equal(t, rcerr.ExitAuth, out.Error.ExitCode)
	assert.Contains(t, buf.String(), "\n  \"error\"")
}

func TestFormatError_RunError_Text(t *testing.T) {
	t.Parallel()

	err := rcerr.WithDetails(rcerr.ErrLoginFailed, map[string]string{
		"status": "401",
		"server": "bad credentials",
	})
	err = rcerr.WithSuggestion(err, "check your email and password")

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))
	got := buf.String()

	assert.True(t, strings.HasPrefix(got, "Error: login rejected by server\n"))
	assert.Contains(t, got, "Suggestion: check your email and password")
	assert.Less(t, strings.Index(got, "server: bad credentials"), strings.Index(got, "status: 401"),
		"details are sorted by key")
}

func TestFormatError_IncludesCause(t *testing.T) {
	t.Parallel()

	err := rcerr.WithCause(rcerr.ErrNetworkError, errGeneric)

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))
	assert.Equal(t, "Error: network communication failed: boom\n", buf.String())

	buf.Reset()
	require.NoError(t, output.FormatError(&buf, err, output.FormatJSON))
	assert.Equal(t, "boom", decodeError(t, buf.Bytes()).Error.Cause)
}

func TestFormatError_DetailsDeterministic(t *testing.T) {
	t.Parallel()

	err := rcerr.WithDetails(rcerr.ErrInvalidInput, map[string]string{
		"zeta": "1", "alpha": "2", "mid": "3", "beta": "4",
	})

	var first string
	for i := range 20 {
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, err, output.FormatText))
		if i == 0 {
			first = buf.String()
			continue
		}
		assert.Equal(t, first, buf.String())
	}
}

func TestFormatError_WriterError(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, output.FormatError(failingWriter{}, rcerr.ErrNotFound, output.FormatText), errWrite)
	require.Error(t, output.FormatError(failingWriter{}, rcerr.ErrNotFound, output.FormatJSON))
}
