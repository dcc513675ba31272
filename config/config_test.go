package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 64<<10, cfg.MaxHeaderBytes)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Equal(t, ParserText, cfg.Parser)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 127.0.0.1:9000
workers: 3
read_timeout: 2s
parser: FastHTTP
log:
  level: debug
rate_limit:
  rps: 50
  burst: 100
gc:
  percent: 200
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, ParserFastHTTP, cfg.Parser)
	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
	assert.Equal(t, 50.0, cfg.RateLimit.RPS)
	assert.Equal(t, 100, cfg.RateLimit.Burst)
	assert.Equal(t, 200, cfg.GC.Percent)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\n"), 0o600))

	t.Setenv("FASTDISPATCH_WORKERS", "7")
	t.Setenv("FASTDISPATCH_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoaderFlagBinding(t *testing.T) {
	l := NewLoader()
	l.Viper().Set("addr", ":7070")

	cfg, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero workers default", func(c *Config) { c.Workers = 0 }, true},
		{"empty parser", func(c *Config) { c.Parser = "" }, true},
		{"empty addr", func(c *Config) { c.Addr = "" }, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, false},
		{"negative conns", func(c *Config) { c.MaxConns = -5 }, false},
		{"negative timeout", func(c *Config) { c.ReadTimeout = -time.Second }, false},
		{"negative body", func(c *Config) { c.MaxBodyBytes = -1 }, false},
		{"unknown parser", func(c *Config) { c.Parser = "magic" }, false},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, false},
		{"negative gc percent", func(c *Config) { c.GC.Percent = -1 }, false},
		{"relative metrics", func(c *Config) { c.Metrics.Path = "metrics" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
				assert.Positive(t, cfg.Workers)
				assert.NotEmpty(t, cfg.Parser)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestIsProduction(t *testing.T) {
	cfg := New()
	assert.False(t, cfg.IsProduction())

	cfg.Env = "Production"
	assert.True(t, cfg.IsProduction())
}
