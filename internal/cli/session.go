package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/output"
	"github.com/kurun/runcheck/internal/session"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	watchMetricsAddr   string
	watchCheckInterval time.Duration
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionCmd = &cobra.Command{
	Use:     "session",
	Short:   "Inspect and maintain the current session",
	GroupID: groupSession,
	Long:    `Inspect the stored session, check or force a token refresh, or keep the session alive.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long: `Show whether a session is held, who it belongs to, when the access token
expires and when the next refresh is scheduled. Tokens are never printed.`,
	Args: cobra.NoArgs,
	RunE: runSessionStatus,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check token validity, refreshing an expired token",
	Long: `Check whether the access token is still usable. An expired token triggers a
refresh; the command waits for it and reports the outcome. Exits non-zero when
no usable session remains.`,
	Args: cobra.NoArgs,
	RunE: runSessionCheck,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the refresh token for a new access token now",
	Long: `Force a refresh regardless of expiry. A rejected refresh token ends the
session and clears the store.`,
	Args: cobra.NoArgs,
	RunE: runSessionRefresh,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long: `Print the access token, refreshing it first if it has expired. Intended for
scripts:

  curl -H "Authorization: Bearer $(runcheck session token)" ...`,
	Args: cobra.NoArgs,
	RunE: runSessionToken,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionInspectCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Decode the claims of an access token",
	Long: `Decode a JWT access token without verifying its signature. With no argument
the stored access token is decoded. The output is for display only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessionInspect,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session alive and print state changes",
	Long: `Stay in the foreground, refreshing the access token before it expires and
printing every session transition. Optionally serves Prometheus metrics.

Example:
  runcheck session watch --metrics-addr 127.0.0.1:9464`,
	Args: cobra.NoArgs,
	RunE: runSessionWatch,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sessionWatchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve /metrics on this address")
	sessionWatchCmd.Flags().DurationVar(&watchCheckInterval, "check-interval", 30*time.Second, "how often to check token validity")

	sessionCmd.AddCommand(sessionStatusCmd, sessionCheckCmd, sessionRefreshCmd,
		sessionTokenCmd, sessionInspectCmd, sessionWatchCmd)
	rootCmd.AddCommand(sessionCmd)
}

// SessionView is the display form of a session. It never carries tokens.
type SessionView struct {
	Authenticated   bool                 `json:"authenticated"`
	User            *session.UserProfile `json:"user,omitempty"`
	TokenExpiry     *time.Time           `json:"token_expiry,omitempty"`
	ExpiresIn       string               `json:"expires_in,omitempty"`
	Expired         bool                 `json:"expired"`
	HasRefreshToken bool                 `json:"has_refresh_token"`
	NextRefresh     *time.Time           `json:"next_refresh,omitempty"`
	Store           string               `json:"store"`
	Persistent      bool                 `json:"persistent"`
}

func sessionView(cc *CommandContext, mgr *session.Manager, st session.State) SessionView {
	v := SessionView{
		Authenticated:   st.IsAuthenticated(),
		User:            st.User,
		HasRefreshToken: st.HasRefreshToken(),
	}
	v.Store, v.Persistent = cc.StoreLabel()

	if !st.TokenExpiry.IsZero() {
		exp := st.TokenExpiry
		v.TokenExpiry = &exp
		remaining := time.Until(exp)
		v.Expired = remaining <= 0
		if !v.Expired {
			v.ExpiresIn = remaining.Round(time.Second).String()
		}
	}
	if next, ok := mgr.NextRefresh(); ok {
		v.NextRefresh = &next
	}
	return v
}

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}
	v := sessionView(cc, mgr, mgr.State())
	return cc.Emit(cmd.OutOrStdout(), v, v.render)
}

// render writes the view as aligned label/value lines.
func (v SessionView) render(w io.Writer) error {
	status := "signed out"
	switch {
	case v.Authenticated && v.Expired:
		status = "expired"
	case v.Authenticated:
		status = "signed in"
	case v.HasRefreshToken:
		status = "refresh pending"
	}

	f := output.NewFields().Add("Status", status)
	if v.User != nil {
		f.Add("User", displayUser(v.User, "-")).AddIf(v.User.Role != "", "Role", v.User.Role)
	}
	if v.TokenExpiry != nil {
		exp := v.TokenExpiry.Local().Format(time.RFC3339)
		if v.ExpiresIn != "" {
			exp += " (in " + v.ExpiresIn + ")"
		}
		f.Add("Expires", exp)
	}
	f.Add("Refresh token", v.HasRefreshToken).
		AddIf(v.NextRefresh != nil, "Next refresh", v.NextRefresh)

	store := v.Store
	if !v.Persistent {
		store += " (not persistent)"
	}
	f.Add("Store", store)

	_, err := f.WriteTo(w)
	return err
}

func runSessionCheck(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}

	valid := mgr.CheckTokenValidity()
	refreshed := false
	if !valid {
		refreshed = ensureSession(cmd, cc, mgr)
	}
	ok := valid || refreshed

	err = cc.Emit(cmd.OutOrStdout(), map[string]bool{"valid": valid, "refreshed": refreshed}, func(w io.Writer) error {
		switch {
		case valid:
			output.Success(w, "Access token is valid")
		case refreshed:
			output.Success(w, "Access token was expired and has been refreshed")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return notAuthenticated()
	}
	return nil
}

func runSessionRefresh(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}
	if !mgr.State().HasRefreshToken() {
		return rcerr.WithSuggestion(rcerr.ErrNoRefreshToken, "run 'runcheck login' to sign in again")
	}

	ctx, cancel := contextWithTimeout(cmd, cc.requestTimeout())
	defer cancel()
	if !mgr.RefreshAccessToken(ctx) {
		return rcerr.WithSuggestion(rcerr.ErrRefreshFailed, "run 'runcheck login' to sign in again")
	}

	return cc.Emit(cmd.OutOrStdout(), sessionView(cc, mgr, mgr.State()), func(w io.Writer) error {
		output.Success(w, "Session refreshed")
		return nil
	})
}

func runSessionToken(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}
	if !ensureSession(cmd, cc, mgr) {
		return notAuthenticated()
	}
	outln(cmd.OutOrStdout(), mgr.AccessToken())
	return nil
}

func runSessionInspect(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		mgr, err := cc.Session()
		if err != nil {
			return err
		}
		if token = mgr.State().AccessToken; token == "" {
			return notAuthenticated()
		}
	}

	claims, err := session.InspectToken(token)
	if err != nil {
		return rcerr.WithCause(rcerr.ErrInvalidFormat, err)
	}

	if cc.Format() != output.FormatJSON {
		output.Warn(cmd.ErrOrStderr(), "signature not verified")
	}
	return cc.Emit(cmd.OutOrStdout(), claims, func(w io.Writer) error {
		return renderClaims(w, claims)
	})
}

// renderClaims lists the claims sorted by name, then the expiry.
func renderClaims(w io.Writer, claims *session.TokenClaims) error {
	keys := make([]string, 0, len(claims.Claims))
	for k := range claims.Claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := output.NewFields().Title("CLAIM", "VALUE")
	for _, k := range keys {
		f.Add(k, fmt.Sprint(claims.Claims[k]))
	}
	if _, err := f.WriteTo(w); err != nil {
		return err
	}

	if !claims.ExpiresAt.IsZero() {
		if remaining := time.Until(claims.ExpiresAt); remaining > 0 {
			out(w, "\nExpires %s (in %s)\n", claims.ExpiresAt.Local().Format(time.RFC3339), remaining.Round(time.Second))
		} else {
			out(w, "\nExpired %s\n", claims.ExpiresAt.Local().Format(time.RFC3339))
		}
	}
	return nil
}

func runSessionWatch(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	mgr, err := cc.Session()
	if err != nil {
		return err
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	unsubscribe := mgr.Subscribe(func(st session.State) {
		printTransition(cc, w, st)
	})
	defer unsubscribe()

	var srv *http.Server
	if watchMetricsAddr != "" {
		srv, err = serveMetrics(cc, watchMetricsAddr)
		if err != nil {
			return err
		}
		output.Infof(cmd.ErrOrStderr(), "serving metrics on http://%s/metrics", watchMetricsAddr)
	}

	if !mgr.CheckTokenValidity() && !mgr.State().HasRefreshToken() {
		return notAuthenticated()
	}

	interval := watchCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return finishWatch(cc, cmd, mgr, srv)
		case <-ticker.C:
			if !mgr.CheckTokenValidity() {
				mgr.Wait()
				if !mgr.State().IsAuthenticated() && !mgr.State().HasRefreshToken() {
					_ = finishWatch(cc, cmd, mgr, srv)
					return notAuthenticated()
				}
			}
		}
	}
}

func printTransition(cc *CommandContext, w io.Writer, st session.State) {
	ts := time.Now().Format(time.RFC3339)
	event := map[string]any{
		"time":              ts,
		"authenticated":     st.IsAuthenticated(),
		"has_refresh_token": st.HasRefreshToken(),
		"token_expiry":      st.TokenExpiry,
	}
	_ = cc.Emit(w, event, func(w io.Writer) error {
		if !st.IsAuthenticated() {
			out(w, "%s  signed out\n", ts)
			return nil
		}
		out(w, "%s  signed in as %s, token expires %s\n", ts,
			displayUser(st.User, "unknown user"), st.TokenExpiry.Local().Format(time.RFC3339))
		return nil
	})
}

func serveMetrics(cc *CommandContext, addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, rcerr.WithCause(rcerr.ErrInvalidInput, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", cc.Metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cc.debug("metrics server stopped: %v", err)
		}
	}()
	return srv, nil
}

func finishWatch(cc *CommandContext, cmd *cobra.Command, mgr *session.Manager, srv *http.Server) error {
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	mgr.Wait()

	s := cc.Metrics.Snapshot()
	if cc.Format() == output.FormatJSON {
		return output.WriteJSON(cmd.OutOrStdout(), s)
	}
	// The summary goes to stderr so stdout only carries transitions.
	out(cmd.ErrOrStderr(), "refreshes: %d ok, %d failed, %d discarded (avg %.1fms)\n",
		s.RefreshSuccess, s.RefreshFailure, s.RefreshDiscarded, s.RefreshLatencyAvgMs())
	return nil
}
