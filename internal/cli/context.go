package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/apiclient"
	"github.com/kurun/runcheck/internal/authapi"
	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/credstore"
	"github.com/kurun/runcheck/internal/metrics"
	"github.com/kurun/runcheck/internal/output"
	"github.com/kurun/runcheck/internal/session"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

// cmdContextKey is the context key for the CommandContext.
type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands. The store, auth service
// and session manager are created on first use so commands that never touch
// the session do not touch a keyring or dial redis.
type CommandContext struct {
	Cfg     *config.Config
	Log     LogWriter
	Fmt     FormatProvider
	Metrics *metrics.Metrics
	Store   credstore.Store
	Auth    AuthService
	Mgr     *session.Manager

	ownsStore bool
	ownsMgr   bool
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(cfg *config.Config, log LogWriter, fmtr FormatProvider) *CommandContext {
	return &CommandContext{
		Cfg:     cfg,
		Log:     log,
		Fmt:     fmtr,
		Metrics: metrics.Global,
	}
}

// WithStore sets the credential store.
func (c *CommandContext) WithStore(s credstore.Store) *CommandContext {
	c.Store = s
	return c
}

// WithAuth sets the auth service.
func (c *CommandContext) WithAuth(a AuthService) *CommandContext {
	c.Auth = a
	return c
}

// WithManager sets an already initialized session manager.
func (c *CommandContext) WithManager(m *session.Manager) *CommandContext {
	c.Mgr = m
	return c
}

// Session returns the session manager, building and rehydrating it on first use.
func (c *CommandContext) Session() (*session.Manager, error) {
	if c.Mgr != nil {
		return c.Mgr, nil
	}
	if c.Cfg == nil {
		c.Cfg = config.Defaults()
	}

	if c.Store == nil {
		s, err := credstore.Open(c.Cfg.Store, c.componentLog("store"))
		if err != nil {
			return nil, rcerr.WithSuggestion(
				rcerr.WithDetails(rcerr.ErrConfigInvalid, map[string]string{"store.backend": c.Cfg.Store.Backend}),
				"run 'runcheck config set store.backend file'",
			)
		}
		c.Store = s
		c.ownsStore = true
	}
	if c.Auth == nil {
		c.Auth = authapi.FromConfig(c.Cfg.API, c.componentLog("auth"))
	}

	c.Mgr = session.New(c.Store, c.Auth, c.sessionOptions()...)
	c.ownsMgr = true
	c.Mgr.Init()
	return c.Mgr, nil
}

func (c *CommandContext) sessionOptions() []session.Option {
	sc := c.Cfg.GetSession()
	opts := []session.Option{
		session.WithMetrics(c.Metrics),
		session.WithDefaultExpiresIn(sc.DefaultExpiresIn()),
		session.WithExpiryBuffer(sc.ExpiryBuffer()),
		session.WithRefreshLead(sc.RefreshLead()),
		session.WithRefreshTimeout(sc.RefreshTimeout()),
		session.WithRearmOnStartup(sc.RearmOnStartup),
	}
	if c.Log != nil {
		opts = append(opts, session.WithLogger(c.componentLog("session")))
	}
	return opts
}

// Client returns a request client bound to the session.
func (c *CommandContext) Client() (*apiclient.Client, error) {
	mgr, err := c.Session()
	if err != nil {
		return nil, err
	}
	opts := []apiclient.Option{
		apiclient.WithMetrics(c.Metrics),
		apiclient.OnSessionExpired(func() {
			c.debug("session expired; login required")
		}),
	}
	if c.Log != nil {
		opts = append(opts, apiclient.WithLogger(c.componentLog("api")))
	}
	return apiclient.FromConfig(c.Cfg.API, mgr, opts...), nil
}

// StoreLabel describes the credential store for status output.
func (c *CommandContext) StoreLabel() (backend string, persistent bool) {
	if c.Cfg != nil {
		backend = c.Cfg.GetStoreBackend()
	}
	return backend, c.Store != nil && c.Store.Available() && backend != config.StoreMemory
}

// Format returns the active output format.
func (c *CommandContext) Format() output.Format {
	if c.Fmt == nil {
		return output.FormatText
	}
	return c.Fmt.Format()
}

// Emit writes v as JSON in JSON mode and calls text otherwise. A nil context
// writes text.
func (c *CommandContext) Emit(w io.Writer, v any, text func(io.Writer) error) error {
	if c == nil || c.Fmt == nil {
		return output.NewFormatter(output.FormatText, false).Emit(w, v, text)
	}
	return c.Fmt.Emit(w, v, text)
}

// Close disposes of the session manager and store this context created.
func (c *CommandContext) Close() {
	if c.ownsMgr && c.Mgr != nil {
		c.Mgr.Close()
		c.ownsMgr = false
	}
	if c.ownsStore && c.Store != nil {
		_ = credstore.Close(c.Store)
		c.ownsStore = false
	}
}

// componentLog tags the file logger's lines with name. Other LogWriters are
// returned unchanged.
func (c *CommandContext) componentLog(name string) LogWriter {
	if l, ok := c.Log.(*config.Logger); ok && l != nil {
		return l.With(name)
	}
	return c.Log
}

func (c *CommandContext) debug(format string, args ...any) {
	if c.Log != nil {
		c.Log.Debug(format, args...)
	}
}

// requestTimeout bounds a single network operation started by a command.
func (c *CommandContext) requestTimeout() time.Duration {
	if c.Cfg == nil {
		return 30 * time.Second
	}
	return c.Cfg.GetAPITimeout() + c.Cfg.GetSession().RefreshTimeout()
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}

// SetCmdContext stores cc in the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext stored on cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}
