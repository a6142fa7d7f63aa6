package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MemoryDatabaseURL selects the in-process store instead of Postgres.
const MemoryDatabaseURL = "memory://"

// Config holds all configuration for the ReviewRepl API server and worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	AI       AIConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port               int    `env:"PORT"                  envDefault:"8080"`
	Env                string `env:"APP_ENV"               envDefault:"development"`
	LogLevel           string `env:"LOG_LEVEL"             envDefault:"info"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
	// ConnectTimeout bounds start-up retries; zero means a single attempt.
	ConnectTimeout time.Duration `env:"DATABASE_CONNECT_TIMEOUT" envDefault:"30s"`
}

// InMemory reports whether the in-process store was requested.
func (d DatabaseConfig) InMemory() bool {
	return d.URL == MemoryDatabaseURL
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// AuthConfig configures verification of bearer tokens issued by the
// identity provider.
type AuthConfig struct {
	JWTSecret   string `env:"AUTH_JWT_SECRET"`
	JWTAudience string `env:"AUTH_JWT_AUDIENCE" envDefault:"authenticated"`
}

type AIConfig struct {
	Provider          string        `env:"AI_PROVIDER"`
	RequestsPerSecond float64       `env:"AI_REQUESTS_PER_SECOND" envDefault:"5"`
	RequestTimeout    time.Duration `env:"AI_REQUEST_TIMEOUT"     envDefault:"60s"`
	OpenAI            OpenAIConfig
	VLLM              VLLMConfig
	Ollama            OllamaConfig
	Anthropic         AnthropicConfig
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model   string `env:"OPENAI_MODEL"    envDefault:"gpt-4o-mini"`
}

type VLLMConfig struct {
	BaseURL string `env:"VLLM_BASE_URL" envDefault:"http://localhost:8000/v1"`
	Model   string `env:"VLLM_MODEL"`
}

type OllamaConfig struct {
	BaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	Model   string `env:"OLLAMA_MODEL"    envDefault:"llama3"`
}

type AnthropicConfig struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	Model   string `env:"ANTHROPIC_MODEL"    envDefault:"claude-3-5-haiku-latest"`
}

// WorkerConfig tunes the job poll loop.
type WorkerConfig struct {
	ID             string        `env:"WORKER_ID"`
	PollInterval   time.Duration `env:"WORKER_POLL_INTERVAL"   envDefault:"15s"`
	BatchSize      int           `env:"WORKER_BATCH_SIZE"      envDefault:"5"`
	HandlerTimeout time.Duration `env:"WORKER_HANDLER_TIMEOUT" envDefault:"2m"`
	// LeaseDuration of zero means HandlerTimeout plus one minute.
	LeaseDuration time.Duration `env:"WORKER_LEASE_DURATION"`
	ReapInterval  time.Duration `env:"WORKER_REAP_INTERVAL"   envDefault:"1m"`
	MaxAttempts   int           `env:"WORKER_MAX_ATTEMPTS"    envDefault:"3"`
	MetricsAddr   string        `env:"WORKER_METRICS_ADDR"`
}

// Lease returns the effective claim lease.
func (w WorkerConfig) Lease() time.Duration {
	if w.LeaseDuration > 0 {
		return w.LeaseDuration
	}
	return w.HandlerTimeout + time.Minute
}

var validProviders = map[string]bool{
	"openai":    true,
	"vllm":      true,
	"ollama":    true,
	"anthropic": true,
	"mock":      true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadDotEnv loads variables from the given .env files. Missing files are
// ignored and variables already set in the process environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, parseOptions()); err != nil {
		return nil, fmt.Errorf("parse environment: %w", envError(err))
	}

	cfg.Server.LogLevel = strings.ToLower(cfg.Server.LogLevel)
	cfg.AI.Provider = strings.ToLower(strings.TrimSpace(cfg.AI.Provider))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseOptions makes parse failures name the variable rather than the
// struct field. OnSet runs for each variable just before its value is parsed.
func parseOptions() env.Options {
	var key string
	keyed := func(parse func(string) (any, error)) env.ParserFunc {
		return func(v string) (any, error) {
			val, err := parse(v)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid value %q", key, v)
			}
			return val, nil
		}
	}
	return env.Options{
		OnSet: func(tag string, _ any, _ bool) { key = tag },
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(0): keyed(func(v string) (any, error) {
				return strconv.Atoi(v)
			}),
			reflect.TypeOf(float64(0)): keyed(func(v string) (any, error) {
				return strconv.ParseFloat(v, 64)
			}),
			reflect.TypeOf(time.Duration(0)): keyed(func(v string) (any, error) {
				return time.ParseDuration(v)
			}),
		},
	}
}

func envError(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return err
	}
	msgs := make([]string, 0, len(agg.Errors))
	for _, e := range agg.Errors {
		var pe env.ParseError
		if errors.As(e, &pe) {
			e = pe.Err
		}
		msgs = append(msgs, e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !c.Database.InMemory() &&
		!strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://, or be %s", MemoryDatabaseURL)
	}

	if c.Database.ConnectTimeout < 0 {
		return fmt.Errorf("DATABASE_CONNECT_TIMEOUT must not be negative")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, vllm, ollama, anthropic, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SECOND must be positive")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.Worker.HandlerTimeout <= 0 {
		return fmt.Errorf("WORKER_HANDLER_TIMEOUT must be positive")
	}
	if c.Worker.LeaseDuration != 0 && c.Worker.LeaseDuration <= c.Worker.HandlerTimeout {
		return fmt.Errorf("WORKER_LEASE_DURATION must exceed WORKER_HANDLER_TIMEOUT")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be positive")
	}

	return nil
}
