package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                  = "8000"
	defaultGeminiModel           = "gemini-2.5-flash"
	defaultOpenAIModel           = "gpt-4o-audio-preview"
	defaultMaxCorrections        = 20
	defaultMaxUploadBytes        = 5 << 20
	defaultRequestTimeoutSeconds = 180
	defaultSessionTTLMinutes     = 60
	defaultRetryAttempts         = 3
	defaultRetryBaseDelayMS      = 500
	defaultTesterTimeoutSeconds  = 60
)

type Retry struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

// Tester gates the endpoint-tester console. Off unless explicitly enabled.
type Tester struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

type Config struct {
	Port       string `yaml:"port"`
	DefaultLLM string `yaml:"default_llm"`

	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// InternalAPIKey protects /detect-voice and /v1/validate-key via x-api-key.
	InternalAPIKey string `yaml:"internal_api_key"`

	MaxCorrections        int `yaml:"max_corrections"`
	MaxUploadBytes        int `yaml:"max_upload_bytes"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	SessionTTLMinutes     int `yaml:"session_ttl_minutes"`

	Retry  Retry  `yaml:"retry"`
	Tester Tester `yaml:"tester"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	WebhookURL       string `yaml:"webhook_url"`
	PromptDir        string `yaml:"prompt_dir"`
}

// Load reads CONFIG_PATH (default config.yaml) when present, applies env
// overrides and defaults, then validates.
func Load() (*Config, error) {
	path := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}

	cfg := &Config{}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
		log.Printf("config loaded from %s", path)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r without consulting the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if err := decode(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	envOverride(&cfg.Port, "PORT")
	envOverride(&cfg.DefaultLLM, "DEFAULT_LLM")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.GeminiModel, "GEMINI_MODEL")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIModel, "OPENAI_MODEL")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.InternalAPIKey, "INTERNAL_API_KEY")
	envOverrideInt(&cfg.MaxCorrections, "MAX_CORRECTIONS")
	envOverrideInt(&cfg.MaxUploadBytes, "MAX_UPLOAD_BYTES")
	envOverrideInt(&cfg.RequestTimeoutSeconds, "REQUEST_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.SessionTTLMinutes, "SESSION_TTL_MINUTES")
	envOverrideInt(&cfg.Retry.MaxAttempts, "RETRY_MAX_ATTEMPTS")
	envOverrideInt(&cfg.Retry.BaseDelayMS, "RETRY_BASE_DELAY_MS")
	envOverrideBool(&cfg.Tester.Enabled, "TESTER_ENABLED")
	envOverrideInt(&cfg.Tester.TimeoutSeconds, "TESTER_TIMEOUT_SECONDS")
	envOverride(&cfg.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	envOverride(&cfg.WebhookURL, "WEBHOOK_URL")
	envOverride(&cfg.PromptDir, "PROMPT_DIR")
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.GeminiModel == "" {
		cfg.GeminiModel = defaultGeminiModel
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = defaultOpenAIModel
	}
	if cfg.DefaultLLM == "" {
		if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey != "" {
			cfg.DefaultLLM = "gpt"
		} else {
			cfg.DefaultLLM = "gemini"
		}
	}
	if cfg.MaxCorrections == 0 {
		cfg.MaxCorrections = defaultMaxCorrections
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if cfg.SessionTTLMinutes == 0 {
		cfg.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaultRetryAttempts
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = defaultRetryBaseDelayMS
	}
	if cfg.Tester.TimeoutSeconds == 0 {
		cfg.Tester.TimeoutSeconds = defaultTesterTimeoutSeconds
	}
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("at least one of gemini_api_key or openai_api_key is required"))
	}
	switch strings.ToLower(c.DefaultLLM) {
	case "gemini", "google":
		if c.GeminiAPIKey == "" {
			errs = append(errs, fmt.Errorf("default_llm %q needs gemini_api_key", c.DefaultLLM))
		}
	case "gpt", "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("default_llm %q needs openai_api_key", c.DefaultLLM))
		}
	default:
		errs = append(errs, fmt.Errorf("default_llm %q is invalid; valid values: gemini, gpt", c.DefaultLLM))
	}
	if c.MaxCorrections < 1 {
		errs = append(errs, fmt.Errorf("max_corrections %d must be >= 1", c.MaxCorrections))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("max_upload_bytes %d must be >= 1", c.MaxUploadBytes))
	}
	if c.RequestTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds %d must be >= 1", c.RequestTimeoutSeconds))
	}
	if c.SessionTTLMinutes < 1 {
		errs = append(errs, fmt.Errorf("session_ttl_minutes %d must be >= 1", c.SessionTTLMinutes))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must be >= 1", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelayMS < 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay_ms %d must be >= 0", c.Retry.BaseDelayMS))
	}
	if c.Tester.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("tester.timeout_seconds %d must be >= 1", c.Tester.TimeoutSeconds))
	}
	return errors.Join(errs...)
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

func (c *Config) TesterTimeout() time.Duration {
	return time.Duration(c.Tester.TimeoutSeconds) * time.Second
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

func envOverrideBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = b
}
