package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurun/runcheck/internal/output"
)

func TestFields_SessionStatus(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var next *time.Time

	f := output.NewFields().
		Add("Status", "signed in").
		Add("Expires", exp).
		Add("Refresh token", true).
		AddIf(false, "Role", "runner").
		Add("Next refresh", next).
		Add("User ID", 7)

	want := strings.Join([]string{
		"Status         signed in",
		"Expires        " + exp.Local().Format(time.RFC3339),
		"Refresh token  yes",
		"Next refresh   -",
		"User ID        7",
		"",
	}, "\n")
	assert.Equal(t, want, f.String())
	assert.Equal(t, 5, f.Len())
}

func TestFields_TitleAndSeparator(t *testing.T) {
	t.Parallel()

	f := output.NewFields().Title("CLAIM", "VALUE").Add("sub", "7").Add("role", "runner")
	assert.Equal(t, "CLAIM  VALUE\n-----  ------\nsub    7\nrole   runner\n", f.String())

	f = output.NewFields().Separator(" = ").Add("api.base_url", "https://api.example").Add("home", "")
	assert.Equal(t, "api.base_url = https://api.example\nhome         = -\n", f.String())
}

func TestFields_Values(t *testing.T) {
	t.Parallel()

	f := output.NewFields().
		Add("nil", nil).
		Add("no", false).
		Add("zero", time.Time{}).
		Add("dur", 90*time.Second).
		Add("é", "x")

	lines := strings.Split(strings.TrimSuffix(f.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "nil   -", lines[0])
	assert.Equal(t, "no    no", lines[1])
	assert.Equal(t, "zero  -", lines[2])
	assert.Equal(t, "dur   1m30s", lines[3])
	assert.Equal(t, "é     x", lines[4], "width counts runes")
}

func TestFields_WriteTo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := output.NewFields().Add("a", "1").WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "a  1\n", buf.String())

	_, err = output.NewFields().Add("a", "1").WriteTo(failingWriter{})
	require.ErrorIs(t, err, errWrite)
}

func TestFields_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, output.NewFields().String())
	assert.Empty(t, output.NewFields().Title("CLAIM", "VALUE").String())
}
