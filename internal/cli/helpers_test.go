package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/credstore"
	"github.com/kurun/runcheck/internal/metrics"
	"github.com/kurun/runcheck/internal/output"
	"github.com/kurun/runcheck/internal/session"
)

const (
	testEmail    = "a@ku.th"
	testPassword = "hunter22"
)

// fakeBackend serves the auth endpoints and a protected /api/runs resource.
type fakeBackend struct {
	srv *httptest.Server

	mu            sync.Mutex
	valid         map[string]bool
	refreshToken  string
	issued        int
	expiresIn     int64
	rejectRefresh bool

	logins    atomic.Int32
	refreshes atomic.Int32
	requests  atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{valid: map[string]bool{}, refreshToken: "rt-1", expiresIn: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", b.handleLogin)
	mux.HandleFunc("/api/users/refresh", b.handleRefresh)
	mux.HandleFunc("/api/runs", b.handleRuns)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) issueLocked() string {
	b.issued++
	tok := "at-" + strconv.Itoa(b.issued)
	b.valid[tok] = true
	return tok
}

// accept marks a token issued outside login as valid.
func (b *fakeBackend) accept(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid[token] = true
}

// expireAll invalidates every issued access token server-side.
func (b *fakeBackend) expireAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid = map[string]bool{}
}

func (b *fakeBackend) setRejectRefresh(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectRefresh = reject
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.logins.Add(1)
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Password != testPassword {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"invalid credentials"}`)
		return
	}

	b.mu.Lock()
	resp := session.LoginResponse{
		AccessToken:  b.issueLocked(),
		RefreshToken: b.refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    b.expiresIn,
		UserID:       7,
		Email:        req.Email,
		Name:         "Kai",
		Role:         "runner",
	}
	b.mu.Unlock()
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshes.Add(1)
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectRefresh || req.RefreshToken != b.refreshToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"refresh token revoked"}`)
		return
	}
	_ = json.NewEncoder(w).Encode(session.TokenResponse{AccessToken: b.issueLocked(), ExpiresIn: b.expiresIn})
}

func (b *fakeBackend) handleRuns(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	ok := b.valid[token]
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_, _ = io.WriteString(w, `[{"id":1,"distance_km":5}]`)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"no such run"}`)
	default:
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"method":%q,"received":%s}`, r.Method, body)
	}
}

// cliEnv runs commands against a backend with a shared in-memory store.
type cliEnv struct {
	t       *testing.T
	backend *fakeBackend
	store   *credstore.MemoryStore
	home    string
	format  output.Format
	metrics *metrics.Metrics
	ctx     context.Context
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		t:       t,
		backend: newFakeBackend(t),
		store:   credstore.NewMemoryStore(),
		home:    t.TempDir(),
		format:  output.FormatText,
		metrics: metrics.New(),
	}
}

func (e *cliEnv) config() *config.Config {
	c := config.Defaults()
	c.Home = e.home
	c.API.BaseURL = e.backend.srv.URL
	c.API.RatePerSecond = 0
	c.API.TimeoutSeconds = 5
	c.Store.Backend = config.StoreMemory
	c.Logging.Level = "off"
	return c
}

func (e *cliEnv) context() *CommandContext {
	cc := NewCommandContext(e.config(), config.NullLogger(), output.NewFormatter(e.format, false))
	cc.Metrics = e.metrics
	return cc.WithStore(e.store)
}

// seedSession writes a session straight into the store.
func (e *cliEnv) seedSession(access, refresh string, expiry time.Time) {
	e.t.Helper()
	if access != "" {
		require.NoError(e.t, e.store.Set(session.KeyAccessToken, access))
		require.NoError(e.t, e.store.Set(session.KeyTokenExpiry, strconv.FormatInt(expiry.UnixMilli(), 10)))
		require.NoError(e.t, e.store.Set(session.KeyUserInfo, `{"id":7,"email":"a@ku.th","name":"Kai","role":"runner"}`))
	}
	if refresh != "" {
		require.NoError(e.t, e.store.Set(session.KeyRefreshToken, refresh))
	}
}

func (e *cliEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	return e.runWithInput("", args...)
}

func (e *cliEnv) runWithInput(stdin string, args ...string) (string, string, error) {
	e.t.Helper()
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return executeCLI(e.t, ctx, e.context(), stdin, append([]string{"--home", e.home}, args...)...)
}

func (e *cliEnv) stored(key string) string {
	v, _ := e.store.Get(key)
	return v
}

// executeCLI runs the root command with cc injected and returns stdout and stderr.
func executeCLI(t *testing.T, ctx context.Context, cc *CommandContext, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetCLIState(t)

	walkCommands(rootCmd, func(c *cobra.Command) { c.SetContext(nil) })
	if cc != nil {
		ctx = context.WithValue(ctx, cmdContextKey{}, cc)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRun is skipped when RunE fails.
	cleanup()
	return stdout.String(), stderr.String(), err
}

// resetCLIState restores package globals and flag variables after the test.
func resetCLIState(t *testing.T) {
	t.Helper()
	origCfg, origLogger, origFormatter, origCtx := cfg, logger, formatter, cmdCtx
	origEmail, origPrompt := promptEmailFn, promptPasswordFn
	t.Cleanup(func() {
		cfg, logger, formatter, cmdCtx = origCfg, origLogger, origFormatter, origCtx
		promptEmailFn, promptPasswordFn = origEmail, origPrompt
		output.SetDecorated(true)
	})

	homeDir, outputFormat, verbose = "", "auto", false
	loginEmail, loginPasswordStdin = "", false
	apiData, apiHeaders, apiSkipAuth, apiSkipRefresh, apiTimeout = "", nil, false, false, 0
	watchMetricsAddr, watchCheckInterval = "", 30*time.Second
	configForce, versionCheck = false, false
}
