package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	rcerr "github.com/kurun/runcheck/pkg/errors"
)

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // Test seams for interactive input
var (
	promptEmailFn    = promptEmail
	promptPasswordFn = promptPassword

	stdinReader io.Reader = os.Stdin
)

// promptEmail reads an email address from stdin.
func promptEmail() (string, error) {
	out(os.Stderr, "Email: ")
	line, err := readLine(stdinReader)
	if err != nil {
		return "", fmt.Errorf("reading email: %w", err)
	}
	if line == "" {
		return "", rcerr.WithSuggestion(rcerr.ErrInvalidInput, "an email address is required")
	}
	return line, nil
}

// promptPassword prompts for a password with hidden input.
func promptPassword(prompt string) (string, error) {
	out(os.Stderr, "%s", prompt)

	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:unconvert // Stdin is uintptr on windows
		line, err := readLine(stdinReader)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return line, nil
	}

	password, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // Stdin is uintptr on windows
	outln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

// readPasswordFrom reads the first line of r, for --password-stdin.
func readPasswordFrom(r io.Reader) (string, error) {
	line, err := readLine(r)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if line == "" {
		return "", rcerr.WithSuggestion(rcerr.ErrInvalidInput, "no password on stdin")
	}
	return line, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
