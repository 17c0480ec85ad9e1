package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurun/runcheck/internal/config"
	"github.com/kurun/runcheck/internal/output"
	rcerr "github.com/kurun/runcheck/pkg/errors"
)

func TestConfigKeysGet(t *testing.T) {
	c := config.Defaults()
	c.Home = "/test/home"
	c.API.BaseURL = "https://api.example.com"
	c.Store.Redis.Password = "supersecret"
	c.Output.Verbose = true

	tests := []struct {
		path string
		want string
	}{
		{"home", "/test/home"},
		{"api.base_url", "https://api.example.com"},
		{"api.rate_per_second", "5"},
		{"session.refresh_lead_seconds", "120"},
		{"session.expiry_buffer_seconds", "60"},
		{"session.rearm_on_startup", "true"},
		{"store.backend", "file"},
		{"store.redis.password", "su..."},
		{"output.verbose", "true"},
		{"logging.level", "error"},
		{"API.Base_URL", "https://api.example.com"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			key, err := lookupConfigKey(tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, key.get(c))
		})
	}
}

func TestConfigKeysSet(t *testing.T) {
	tests := []struct {
		path    string
		value   string
		check   func(t *testing.T, c *config.Config)
		wantErr error
	}{
		{path: "api.base_url", value: " https://api.example.com/ ", check: func(t *testing.T, c *config.Config) {
			assert.Equal(t, "https://api.example.com", c.API.BaseURL)
		}},
		{path: "api.base_url", value: "http://example.com", check: func(t *testing.T, c *config.Config) {
			assert.Equal(t, "http://example.com", c.API.BaseURL, "insecure URLs are accepted with a warning elsewhere")
		}},
		{path: "api.base_url", value: "ftp://example.com", wantErr: rcerr.ErrInvalidFormat},
		{path: "api.login_path", value: "/v2/login", check: func(t *testing.T, c *config.Config) {
			assert.Equal(t, "/v2/login", c.API.LoginPath)
		}},
		{path: "api.login_path", value: "v2/login", wantErr: rcerr.ErrInvalidFormat},
		{path: "api.timeout_seconds", value: "0", wantErr: rcerr.ErrInvalidFormat},
		{path: "api.rate_per_second", value: "2.5", check: func(t *testing.T, c *config.Config) {
			assert.InDelta(t, 2.5, c.API.RatePerSecond, 0.0001)
		}},
		{path: "api.rate_per_second", value: "-1", wantErr: rcerr.ErrInvalidFormat},
		{path: "session.expiry_buffer_seconds", value: "0", check: func(t *testing.T, c *config.Config) {
			assert.Equal(t, 0, c.Session.ExpiryBufferSeconds)
		}},
		{path: "session.rearm_on_startup", value: "false", check: func(t *testing.T, c *config.Config) {
			assert.False(t, c.Session.RearmOnStartup)
		}},
		{path: "session.rearm_on_startup", value: "maybe", wantErr: rcerr.ErrInvalidFormat},
		{path: "store.backend", value: "Keyring", check: func(t *testing.T, c *config.Config) {
			assert.Equal(t, config.StoreKeyring, c.Store.Backend)
		}},
		{path: "store.backend", value: "sqlite", wantErr: rcerr.ErrInvalidFormat},
		{path: "output.color", value: "never", check: func(t *testing.T, c *config.Config) {
			assert.Equal(t, "never", c.Output.Color)
		}},
		{path: "logging.level", value: "trace", wantErr: rcerr.ErrInvalidFormat},
	}
	for _, tc := range tests {
		t.Run(tc.path+"="+tc.value, func(t *testing.T) {
			key, err := lookupConfigKey(tc.path)
			require.NoError(t, err)

			c := config.Defaults()
			err = key.set(c, tc.value)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, c)
		})
	}
}

func TestLookupConfigKeySuggests(t *testing.T) {
	_, err := lookupConfigKey("store.backnd")
	require.ErrorIs(t, err, rcerr.ErrUnknownConfigKey)

	var re *rcerr.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "did you mean 'store.backend'?", re.Suggestion)

	_, err = lookupConfigKey("zzzzzzzzzzzzzzzzzzzz")
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Suggestion, "config show")
}

func TestConfigCommands(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run("config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration initialized")
	require.FileExists(t, filepath.Join(env.home, "config.yaml"))

	_, _, err = env.run("config", "init")
	require.ErrorIs(t, err, rcerr.ErrGeneral)

	_, _, err = env.run("config", "init", "--force")
	require.NoError(t, err)

	stdout, _, err = env.run("config", "set", "session.refresh_lead_seconds", "300")
	require.NoError(t, err)
	assert.Equal(t, "Set session.refresh_lead_seconds = 300\n", stdout)

	saved, err := config.Load(config.Path(env.home))
	require.NoError(t, err)
	assert.Equal(t, 300, saved.Session.RefreshLeadSeconds)

	_, _, err = env.run("config", "set", "session.refresh_lead", "300")
	require.ErrorIs(t, err, rcerr.ErrUnknownConfigKey)
	assert.Equal(t, rcerr.ExitInput, ExitCode(err))

	stdout, _, err = env.run("config", "get", "store.backend")
	require.NoError(t, err)
	assert.Equal(t, "memory\n", stdout, "get reads the effective configuration")
}

func TestConfigShow(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run("config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "api.base_url")
	assert.Contains(t, stdout, env.backend.srv.URL)

	env.format = output.FormatJSON
	stdout, _, err = env.run("config", "show")
	require.NoError(t, err)

	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &m))
	assert.Equal(t, "memory", m["store.backend"])
	assert.Len(t, m, len(configKeys))
}

func TestInvalidConfigFileWarns(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(config.Path(env.home), []byte("api: [unclosed"), 0o600))

	_, stderr, err := env.run("config", "get", "home")
	require.NoError(t, err)
	assert.Contains(t, stderr, "ignoring unreadable config")
}

func TestMaskSecret(t *testing.T) {
	assert.Empty(t, maskSecret(""))
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "lo...", maskSecret("longsecret"))
}
