package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingSecret marks a required credential that was not supplied.
var ErrMissingSecret = errors.New("missing required secret")

const (
	defaultModelName    = "gemini-2.5-flash"
	defaultMemoryLimit  = 20
	defaultEnvFile      = ".env"
	defaultPollTimeoutS = 30
)

// Config contains all runtime settings for the relay.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	TelegramEnabled     bool
	TelegramBotToken    string
	TelegramPollTimeout int
	TelegramAllowed     string
	DispatchConcurrency int

	ModelProvider string
	ModelName     string
	ModelTimeout  time.Duration
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	ModelHTTPURL  string
	ModelHTTPAuth string

	SystemPreamble    string
	MemoryLimit       int
	RecordFailedTurns bool

	FallbackUnreachable string
	FallbackMalformed   string
	FallbackInternal    string

	TranscriptDatabaseURL string

	LogLevel  string
	LogFormat string
}

// Options adjusts how Load resolves settings.
type Options struct {
	// EnvFile is read when it exists. Process environment wins over it.
	EnvFile string
	// Console skips the Telegram settings, for the local chat REPL.
	Console bool
}

// Load reads the environment (and a .env file when present) and applies
// defaults.
func Load() (Config, error) {
	return LoadWithOptions(Options{EnvFile: defaultEnvFile})
}

func LoadWithOptions(opts Options) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if opts.EnvFile != "" {
		if _, err := os.Stat(opts.EnvFile); err == nil {
			v.SetConfigFile(opts.EnvFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read %s: %w", opts.EnvFile, err)
			}
		}
	}

	cfg := Config{
		BindAddr:              stringOr(v, "APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      stringOr(v, "APP_METRICS_NAMESPACE", "relay"),
		TelegramBotToken:      trimmed(v, "TELEGRAM_BOT_TOKEN"),
		TelegramAllowed:       trimmed(v, "TELEGRAM_ALLOWED_USERS"),
		ModelProvider:         strings.ToLower(stringOr(v, "MODEL_PROVIDER", "gemini")),
		ModelName:             stringOr(v, "MODEL_NAME", defaultModelName),
		GeminiAPIKey:          trimmed(v, "GEMINI_API_KEY"),
		OpenAIAPIKey:          trimmed(v, "OPENAI_API_KEY"),
		OpenAIBaseURL:         trimmed(v, "OPENAI_BASE_URL"),
		ModelHTTPURL:          trimmed(v, "MODEL_HTTP_URL"),
		ModelHTTPAuth:         trimmed(v, "MODEL_HTTP_TOKEN"),
		SystemPreamble:        trimmed(v, "SYSTEM_PREAMBLE"),
		FallbackUnreachable:   trimmed(v, "FALLBACK_UNREACHABLE"),
		FallbackMalformed:     trimmed(v, "FALLBACK_MALFORMED"),
		FallbackInternal:      trimmed(v, "FALLBACK_INTERNAL"),
		TranscriptDatabaseURL: trimmed(v, "TRANSCRIPT_DATABASE_URL"),
		LogLevel:              stringOr(v, "LOG_LEVEL", "info"),
		LogFormat:             trimmed(v, "LOG_FORMAT"),
	}
	if opts.Console {
		cfg.BindAddr = ""
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFrom(v, "APP_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ModelTimeout, err = durationFrom(v, "MODEL_TIMEOUT", 60*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFrom(v, "APP_ALLOW_ANY_ORIGIN", false); err != nil {
		return Config{}, err
	}
	if cfg.TelegramEnabled, err = boolFrom(v, "RELAY_TELEGRAM_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.RecordFailedTurns, err = boolFrom(v, "RECORD_FAILED_TURNS", true); err != nil {
		return Config{}, err
	}
	if cfg.MemoryLimit, err = intFrom(v, "MEMORY_LIMIT", defaultMemoryLimit); err != nil {
		return Config{}, err
	}
	if cfg.DispatchConcurrency, err = intFrom(v, "DISPATCH_CONCURRENCY", 8); err != nil {
		return Config{}, err
	}
	if cfg.TelegramPollTimeout, err = intFrom(v, "TELEGRAM_POLL_TIMEOUT", defaultPollTimeoutS); err != nil {
		return Config{}, err
	}
	if opts.Console {
		cfg.TelegramEnabled = false
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MemoryLimit < 2 {
		return fmt.Errorf("MEMORY_LIMIT must be at least 2")
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive")
	}
	if c.DispatchConcurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive")
	}
	if c.TelegramPollTimeout < 0 {
		return fmt.Errorf("TELEGRAM_POLL_TIMEOUT must be >= 0")
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}

	if c.TelegramEnabled && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN: %w", ErrMissingSecret)
	}
	switch c.ModelProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY: %w", ErrMissingSecret)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY: %w", ErrMissingSecret)
		}
	case "http":
		if c.ModelHTTPURL == "" {
			return fmt.Errorf("MODEL_HTTP_URL is required when MODEL_PROVIDER=http")
		}
	case "mock", "echo":
	default:
		return fmt.Errorf("MODEL_PROVIDER %q is not supported", c.ModelProvider)
	}
	return nil
}

func stringOr(v *viper.Viper, key, fallback string) string {
	s := trimmed(v, key)
	if s == "" {
		return fallback
	}
	return s
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func durationFrom(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	s := trimmed(v, key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFrom(v *viper.Viper, key string, fallback int) (int, error) {
	s := trimmed(v, key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFrom(v *viper.Viper, key string, fallback bool) (bool, error) {
	s := strings.ToLower(trimmed(v, key))
	if s == "" {
		return fallback, nil
	}
	switch s {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
