package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/output"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage configuration",
	GroupID: groupConfig,
	Long:    `View and modify runcheck configuration settings.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.runcheck/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.

Example:
  runcheck config init
  runcheck config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration after environment overrides.
The redis password is masked.

Example:
  runcheck config show
  runcheck config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its dotted path.

Examples:
  runcheck config get api.base_url
  runcheck config get store.backend
  runcheck config get session.refresh_lead_seconds`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its dotted path.
The configuration file is updated immediately.

Examples:
  runcheck config set api.base_url https://api.runcheck.example
  runcheck config set store.backend keyring
  runcheck config set output.default_format json`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

// configKey reads and writes one dotted configuration path.
type configKey struct {
	get func(c *config.Config) string
	set func(c *config.Config, value string) error
}

//nolint:gochecknoglobals // Static key registry
var configKeys = map[string]configKey{
	"home": {
		get: func(c *config.Config) string { return c.Home },
		set: func(c *config.Config, v string) error { c.Home = v; return nil },
	},
	"api.base_url": {
		get: func(c *config.Config) string { return c.API.BaseURL },
		set: setBaseURL,
	},
	"api.login_path": {
		get: func(c *config.Config) string { return c.API.LoginPath },
		set: func(c *config.Config, v string) error { return setPath(&c.API.LoginPath, v) },
	},
	"api.refresh_path": {
		get: func(c *config.Config) string { return c.API.RefreshPath },
		set: func(c *config.Config, v string) error { return setPath(&c.API.RefreshPath, v) },
	},
	"api.timeout_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.API.TimeoutSeconds) },
		set: func(c *config.Config, v string) error { return setInt(&c.API.TimeoutSeconds, v, 1) },
	},
	"api.rate_per_second": {
		get: func(c *config.Config) string { return strconv.FormatFloat(c.API.RatePerSecond, 'f', -1, 64) },
		set: func(c *config.Config, v string) error { return setFloat(&c.API.RatePerSecond, v) },
	},
	"api.burst": {
		get: func(c *config.Config) string { return strconv.Itoa(c.API.Burst) },
		set: func(c *config.Config, v string) error { return setInt(&c.API.Burst, v, 1) },
	},
	"api.user_agent": {
		get: func(c *config.Config) string { return c.API.UserAgent },
		set: func(c *config.Config, v string) error { c.API.UserAgent = v; return nil },
	},
	"session.default_expires_in_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Session.DefaultExpiresInSeconds) },
		set: func(c *config.Config, v string) error { return setInt(&c.Session.DefaultExpiresInSeconds, v, 1) },
	},
	"session.expiry_buffer_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Session.ExpiryBufferSeconds) },
		set: func(c *config.Config, v string) error { return setInt(&c.Session.ExpiryBufferSeconds, v, 0) },
	},
	"session.refresh_lead_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Session.RefreshLeadSeconds) },
		set: func(c *config.Config, v string) error { return setInt(&c.Session.RefreshLeadSeconds, v, 0) },
	},
	"session.refresh_timeout_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Session.RefreshTimeoutSeconds) },
		set: func(c *config.Config, v string) error { return setInt(&c.Session.RefreshTimeoutSeconds, v, 1) },
	},
	"session.rearm_on_startup": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Session.RearmOnStartup) },
		set: func(c *config.Config, v string) error { return setBool(&c.Session.RearmOnStartup, v) },
	},
	"store.backend": {
		get: func(c *config.Config) string { return c.Store.Backend },
		set: func(c *config.Config, v string) error {
			return setEnum(&c.Store.Backend, v, config.StoreBackends...)
		},
	},
	"store.file": {
		get: func(c *config.Config) string { return c.Store.File },
		set: func(c *config.Config, v string) error { c.Store.File = v; return nil },
	},
	"store.identity_file": {
		get: func(c *config.Config) string { return c.Store.IdentityFile },
		set: func(c *config.Config, v string) error { c.Store.IdentityFile = v; return nil },
	},
	"store.keyring_service": {
		get: func(c *config.Config) string { return c.Store.KeyringService },
		set: func(c *config.Config, v string) error { c.Store.KeyringService = v; return nil },
	},
	"store.redis.addr": {
		get: func(c *config.Config) string { return c.Store.Redis.Addr },
		set: func(c *config.Config, v string) error { c.Store.Redis.Addr = v; return nil },
	},
	"store.redis.password": {
		get: func(c *config.Config) string { return maskSecret(c.Store.Redis.Password) },
		set: func(c *config.Config, v string) error { c.Store.Redis.Password = v; return nil },
	},
	"store.redis.db": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Store.Redis.DB) },
		set: func(c *config.Config, v string) error { return setInt(&c.Store.Redis.DB, v, 0) },
	},
	"store.redis.prefix": {
		get: func(c *config.Config) string { return c.Store.Redis.Prefix },
		set: func(c *config.Config, v string) error { c.Store.Redis.Prefix = v; return nil },
	},
	"output.default_format": {
		get: func(c *config.Config) string { return c.Output.DefaultFormat },
		set: func(c *config.Config, v string) error {
			return setEnum(&c.Output.DefaultFormat, v, "text", "json", "auto")
		},
	},
	"output.color": {
		get: func(c *config.Config) string { return c.Output.Color },
		set: func(c *config.Config, v string) error {
			return setEnum(&c.Output.Color, v, "auto", "always", "never")
		},
	},
	"output.verbose": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Output.Verbose) },
		set: func(c *config.Config, v string) error { return setBool(&c.Output.Verbose, v) },
	},
	"logging.level": {
		get: func(c *config.Config) string { return c.Logging.Level },
		set: func(c *config.Config, v string) error { return setEnum(&c.Logging.Level, v, "off", "error", "debug") },
	},
	"logging.file": {
		get: func(c *config.Config) string { return c.Logging.File },
		set: func(c *config.Config, v string) error { c.Logging.File = v; return nil },
	},
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	c := activeConfig(cmd)
	configPath := config.Path(c.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return rcerr.WithSuggestion(
			rcerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = c.Home

	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - api.base_url: Backend URL")
	outln(w, "  - store.backend: Credential store (file/keyring/redis/memory/none)")
	outln(w, "  - session.refresh_lead_seconds: How early to refresh the access token")
	outln(w, "  - logging.level: Log level (off/error/debug)")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	c := activeConfig(cmd)
	text := func(w io.Writer) error { return displayConfigText(w, c) }
	if cc := GetCmdContext(cmd); cc != nil {
		return cc.Emit(w, configValues(c), text)
	}
	return text(w)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key, err := lookupConfigKey(args[0])
	if err != nil {
		return err
	}
	outln(cmd.OutOrStdout(), key.get(activeConfig(cmd)))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]

	key, err := lookupConfigKey(path)
	if err != nil {
		return err
	}

	home := activeConfig(cmd).Home
	configPath := config.Path(home)
	currentCfg, err := config.Load(configPath)
	if err != nil {
		currentCfg = config.Defaults()
		currentCfg.Home = home
	}

	if err := key.set(currentCfg, value); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := config.Save(currentCfg, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, key.get(currentCfg))
	return nil
}

// activeConfig returns the command's configuration, falling back to defaults.
func activeConfig(cmd *cobra.Command) *config.Config {
	if cc := GetCmdContext(cmd); cc != nil && cc.Cfg != nil {
		return cc.Cfg
	}
	if cfg != nil {
		return cfg
	}
	return config.Defaults()
}

// lookupConfigKey resolves a dotted path, suggesting the closest known key.
func lookupConfigKey(path string) (configKey, error) {
	path = strings.ToLower(strings.TrimSpace(path))
	if key, ok := configKeys[path]; ok {
		return key, nil
	}

	err := rcerr.WithDetails(rcerr.ErrUnknownConfigKey, map[string]string{"key": path})
	if s := closestConfigKey(path); s != "" {
		return configKey{}, rcerr.WithSuggestion(err, fmt.Sprintf("did you mean '%s'?", s))
	}
	return configKey{}, rcerr.WithSuggestion(err, "run 'runcheck config show' to list keys")
}

func closestConfigKey(path string) string {
	best, bestDist := "", len(path)/2+1
	for _, name := range sortedConfigKeys() {
		if d := levenshtein.ComputeDistance(path, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}

func sortedConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setBaseURL(c *config.Config, v string) error {
	u := config.SanitizeURL(v)
	if err := config.ValidateBaseURL(u); err != nil && !errors.Is(err, config.ErrInsecureBaseURL) {
		return rcerr.WithDetails(rcerr.ErrInvalidFormat, map[string]string{"value": v, "reason": err.Error()})
	}
	c.API.BaseURL = u
	return nil
}

func setPath(dst *string, v string) error {
	if !strings.HasPrefix(v, "/") {
		return rcerr.WithDetails(rcerr.ErrInvalidFormat, map[string]string{"value": v, "valid": "a path starting with /"})
	}
	*dst = v
	return nil
}

func setInt(dst *int, v string, minimum int) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < minimum {
		return rcerr.WithDetails(rcerr.ErrInvalidFormat, map[string]string{"value": v, "valid": fmt.Sprintf("an integer >= %d", minimum)})
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return rcerr.WithDetails(rcerr.ErrInvalidFormat, map[string]string{"value": v, "valid": "a non-negative number"})
	}
	*dst = f
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return rcerr.WithDetails(rcerr.ErrInvalidFormat, map[string]string{"value": v, "valid": "true or false"})
	}
	*dst = b
	return nil
}

func setEnum(dst *string, v string, valid ...string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, ok := range valid {
		if v == ok {
			*dst = v
			return nil
		}
	}
	return rcerr.WithDetails(rcerr.ErrInvalidFormat, map[string]string{"value": v, "valid": strings.Join(valid, ", ")})
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) >= 8:
		return s[:2] + "..."
	}
	return "***"
}

// displayConfigText shows the config as key = value lines.
func displayConfigText(w io.Writer, c *config.Config) error {
	f := output.NewFields().Separator(" = ")
	for _, k := range sortedConfigKeys() {
		f.Add(k, configKeys[k].get(c))
	}
	_, err := f.WriteTo(w)
	return err
}

// configValues flattens the config into dotted keys.
func configValues(c *config.Config) map[string]string {
	m := make(map[string]string, len(configKeys))
	for k, key := range configKeys {
		m[k] = key.get(c)
	}
	return m
}
