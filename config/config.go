// Package config loads server configuration from defaults, an optional YAML
// file, .env files and FASTDISPATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/searchktools/fast-dispatch/logging"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "FASTDISPATCH"

// Parser names
const (
	ParserText     = "text"
	ParserFastHTTP = "fasthttp"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all server configuration.
type Config struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	MaxConns       int           `mapstructure:"max_conns" yaml:"max_conns"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	Parser         string        `mapstructure:"parser" yaml:"parser"`
	ReusePort      bool          `mapstructure:"reuse_port" yaml:"reuse_port"`
	Env            string        `mapstructure:"env" yaml:"env"`
	PublicDir      string        `mapstructure:"public_dir" yaml:"public_dir"`

	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	GC        GCConfig        `mapstructure:"gc" yaml:"gc"`
}

// LogConfig selects the logger level, format and output
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// RateLimitConfig configures the per-client limiter. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// MetricsConfig places the metrics route. An empty path disables it.
type MetricsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// GCConfig tunes the garbage collector at start. Zero keeps the runtime
// setting.
type GCConfig struct {
	Percent     int   `mapstructure:"percent" yaml:"percent"`
	MemoryLimit int64 `mapstructure:"memory_limit" yaml:"memory_limit"`
}

var defaults = map[string]any{
	"addr":             ":8080",
	"workers":          0,
	"max_conns":        0,
	"read_timeout":     10 * time.Second,
	"write_timeout":    10 * time.Second,
	"max_header_bytes": 64 << 10,
	"max_body_bytes":   int64(10 << 20),
	"parser":           ParserText,
	"reuse_port":       false,
	"env":              "development",
	"public_dir":       "./public",
	"log.level":        "info",
	"log.format":       "auto",
	"log.output":       "stderr",
	"rate_limit.rps":   0.0,
	"rate_limit.burst": 0,
	"metrics.path":     "/metrics",
	"gc.percent":       0,
	"gc.memory_limit":  int64(0),
}

// New returns the default configuration without reading files or the
// environment.
func New() *Config {
	cfg := &Config{}
	if err := NewLoader().viper.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	cfg.Workers = runtime.NumCPU()
	return cfg
}

// Loader reads configuration through its own viper instance so that
// command flags can be bound before Load.
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a loader primed with defaults
func NewLoader() *Loader {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return &Loader{viper: v}
}

// Viper exposes the underlying instance for flag binding
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// Load reads .env files, the YAML file at path if non-empty, and the
// environment, then validates the result.
func (l *Loader) Load(path string) (*Config, error) {
	loadEnvFiles()

	l.viper.SetEnvPrefix(EnvPrefix)
	l.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.viper.AutomaticEnv()

	if path != "" {
		l.viper.SetConfigFile(path)
		if err := l.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is NewLoader().Load(path)
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// loadEnvFiles loads .env then .env.local; missing files are ignored and
// variables already set in the process win.
func loadEnvFiles() {
	for _, file := range []string{".env", ".env.local"} {
		_ = godotenv.Load(file)
	}
}

// Validate fills zero values with defaults and rejects impossible settings
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("%w: max_conns must not be negative, got %d", ErrInvalidConfig, c.MaxConns)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if c.MaxHeaderBytes < 0 || c.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: size limits must not be negative", ErrInvalidConfig)
	}

	c.Parser = strings.ToLower(strings.TrimSpace(c.Parser))
	switch c.Parser {
	case "":
		c.Parser = ParserText
	case ParserText, ParserFastHTTP:
	default:
		return fmt.Errorf("%w: unknown parser %q (want %s or %s)", ErrInvalidConfig, c.Parser, ParserText, ParserFastHTTP)
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	if c.GC.Percent < 0 || c.GC.MemoryLimit < 0 {
		return fmt.Errorf("%w: gc settings must not be negative", ErrInvalidConfig)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics path %q must start with /", ErrInvalidConfig, c.Metrics.Path)
	}
	return nil
}

// IsProduction reports whether Env names a production deployment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// LoggingConfig converts the log section for the logging package
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Output: c.Log.Output,
	}
}
