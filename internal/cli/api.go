package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/apiclient"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	apiData        string
	apiHeaders     []string
	apiSkipAuth    bool
	apiSkipRefresh bool
	apiTimeout     time.Duration
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var apiCmd = &cobra.Command{
	Use:     "api",
	Short:   "Send authenticated requests to the backend",
	GroupID: groupAPI,
	Long: `Send a request to the backend with the session's bearer token. A 401
response triggers one token refresh and a single retry; if the refresh fails the
session is cleared and the command exits with an authentication error.

Endpoints are relative to api.base_url unless given as absolute URLs.

Example:
  runcheck api get /api/runs
  runcheck api post /api/runs --data '{"distance_km": 5}'
  runcheck api put /api/users/me --data @profile.json`,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		apiCmd.AddCommand(newAPIMethodCmd(method))
	}
	rootCmd.AddCommand(apiCmd)
}

func newAPIMethodCmd(method string) *cobra.Command {
	c := &cobra.Command{
		Use:   strings.ToLower(method) + " <endpoint>",
		Short: "Send a " + method + " request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd, method, args[0])
		},
	}
	if method != http.MethodGet && method != http.MethodDelete {
		c.Flags().StringVarP(&apiData, "data", "d", "", "request body: literal JSON, @file, or - for stdin")
	}
	c.Flags().StringArrayVarP(&apiHeaders, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	c.Flags().BoolVar(&apiSkipAuth, "skip-auth", false, "send without the Authorization header")
	c.Flags().BoolVar(&apiSkipRefresh, "skip-refresh", false, "do not refresh and retry on 401")
	c.Flags().DurationVar(&apiTimeout, "timeout", 0, "overall deadline including a refresh and retry")
	return c
}

// APIResult is the JSON rendering of a response.
type APIResult struct {
	Status    int             `json:"status"`
	RequestID string          `json:"request_id,omitempty"`
	Retried   bool            `json:"retried"`
	Body      json.RawMessage `json:"body,omitempty"`
	Text      string          `json:"text,omitempty"`
}

func runAPI(cmd *cobra.Command, method, endpoint string) error {
	cc := GetCmdContext(cmd)

	body, err := readRequestBody(cmd, apiData)
	if err != nil {
		return err
	}
	opts, err := requestOptions(apiHeaders, apiSkipAuth, apiSkipRefresh)
	if err != nil {
		return err
	}

	client, err := cc.Client()
	if err != nil {
		return err
	}

	timeout := apiTimeout
	if timeout <= 0 {
		timeout = 2*cc.requestTimeout() + cc.Cfg.GetAPITimeout()
	}
	ctx, cancel := contextWithTimeout(cmd, timeout)
	defer cancel()

	var reqBody any
	if body != nil {
		reqBody = body
	}
	resp, err := client.Do(ctx, method, endpoint, reqBody, opts...)
	if err != nil {
		return requestError(err)
	}

	if err := renderResponse(cmd, cc, resp); err != nil {
		return err
	}
	return statusToError(resp)
}

// requestError turns a deadline hit while sending or refreshing into
// ErrTimeout. The session is untouched in that case.
func requestError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rcerr.WithSuggestion(rcerr.WithCause(rcerr.ErrTimeout, err),
			"the session was kept; retry or raise --timeout")
	}
	return err
}

// readRequestBody resolves --data into raw bytes. Nil means no body.
func readRequestBody(cmd *cobra.Command, data string) ([]byte, error) {
	switch {
	case data == "":
		return nil, nil
	case data == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		return b, nil
	case strings.HasPrefix(data, "@"):
		// #nosec G304 -- file named explicitly by the user
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, rcerr.WithCause(rcerr.ErrInvalidInput, err)
		}
		return b, nil
	}
	return []byte(data), nil
}

func requestOptions(headers []string, skipAuth, skipRefresh bool) ([]apiclient.RequestOption, error) {
	var opts []apiclient.RequestOption
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, rcerr.WithSuggestion(rcerr.ErrInvalidInput, fmt.Sprintf("header %q must look like 'Name: value'", h))
		}
		opts = append(opts, apiclient.WithHeader(name, strings.TrimSpace(value)))
	}
	if skipAuth {
		opts = append(opts, apiclient.SkipAuth())
	}
	if skipRefresh {
		opts = append(opts, apiclient.SkipRefresh())
	}
	return opts, nil
}

func renderResponse(cmd *cobra.Command, cc *CommandContext, resp *apiclient.Response) error {
	isJSON := json.Valid(resp.Body)
	res := APIResult{Status: resp.StatusCode, RequestID: resp.RequestID, Retried: resp.Retried}
	if isJSON {
		res.Body = resp.Body
	} else {
		res.Text = string(resp.Body)
	}

	return cc.Emit(cmd.OutOrStdout(), res, func(w io.Writer) error {
		if cc.Cfg.IsVerbose() {
			out(cmd.ErrOrStderr(), "HTTP %d %s (request %s", resp.StatusCode, http.StatusText(resp.StatusCode), resp.RequestID)
			if resp.Retried {
				out(cmd.ErrOrStderr(), ", retried after refresh")
			}
			outln(cmd.ErrOrStderr(), ")")
		}
		return writeBody(w, resp.Body, isJSON)
	})
}

// writeBody prints a response body, indenting JSON.
func writeBody(w io.Writer, body []byte, isJSON bool) error {
	if len(body) == 0 {
		return nil
	}
	if isJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			outln(w, buf.String())
			return nil
		}
	}
	_, err := w.Write(body)
	if err == nil && !bytes.HasSuffix(body, []byte("\n")) {
		outln(w)
	}
	return err
}

// statusToError maps a non-2xx status onto the exit-code taxonomy.
func statusToError(resp *apiclient.Response) error {
	if resp.OK() {
		return nil
	}
	details := map[string]string{"status": strconv.Itoa(resp.StatusCode)}
	if resp.RequestID != "" {
		details["request_id"] = resp.RequestID
	}

	var base error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		base = rcerr.ErrAuthentication
	case resp.StatusCode == http.StatusForbidden:
		base = rcerr.ErrPermission
	case resp.StatusCode == http.StatusNotFound:
		base = rcerr.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		base = rcerr.ErrRateLimited
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError:
		base = rcerr.ErrInvalidInput
	default:
		base = rcerr.ErrGeneral
	}
	return rcerr.WithDetails(base, details)
}
