// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/completion"
	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
	"github.com/Wainainajnr/ngongtownbot/internal/intent"
	"github.com/Wainainajnr/ngongtownbot/internal/ratelimit"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	GRPCPort        string
	Env             string
	Version         string
	LogLevel        slog.Level
	FrontendURL     string
	AllowedOrigins  []string
	DBPath          string
	LeadStore       bool
	RoutingMode     intent.Mode
	DefaultLanguage i18n.Language
	// EscalationNumber overrides the catalog's WhatsApp number when set.
	EscalationNumber string
	Completion       completion.Config
	RateLimit        ratelimit.Config
	PostHog          PostHogConfig
	SessionTTL       time.Duration
	PersistTimeout   time.Duration
	HealthTimeout    time.Duration
	MaxRequestBody   int64
	ConversationLog  ConversationLogConfig
}

// PostHogConfig enables PostHog analytics when APIKey is set.
type PostHogConfig struct {
	APIKey   string
	Endpoint string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	mode, err := intent.ParseMode(getEnv("ROUTING_MODE", string(intent.ModeStrict)))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	langTag := strings.TrimSpace(getEnv("DEFAULT_LANGUAGE", ""))
	if langTag == "" {
		langTag = string(i18n.English)
	}
	lang, ok := i18n.Parse(langTag)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: unsupported DEFAULT_LANGUAGE %q", langTag)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		GRPCPort:         getEnv("GRPC_PORT", "9090"),
		Env:              getEnv("ENV", "development"),
		Version:          getEnv("VERSION", "dev"),
		LogLevel:         parseLevel(getEnv("LOG_LEVEL", "info")),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS"),
		DBPath:           getEnv("DB_PATH", "./data/leads.db"),
		LeadStore:        getEnvBool("LEAD_STORE_ENABLED", true),
		RoutingMode:      mode,
		DefaultLanguage:  lang,
		EscalationNumber: getEnv("ESCALATION_NUMBER", ""),
		Completion: completion.Config{
			Provider: strings.ToLower(getEnv("COMPLETION_PROVIDER", completion.ProviderNone)),
			Model:    getEnv("COMPLETION_MODEL", ""),
			APIKey:   getEnv("COMPLETION_API_KEY", ""),
			BaseURL:  getEnv("COMPLETION_BASE_URL", ""),
			Timeout:  getEnvDuration("COMPLETION_TIMEOUT", 20*time.Second),
		},
		RateLimit: ratelimit.Config{
			Policy:   getEnv("RATE_LIMIT_POLICY", ratelimit.PolicyFixedWindow),
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			Burst:    getEnvInt("RATE_LIMIT_BURST", 0),
		},
		PostHog: PostHogConfig{
			APIKey:   getEnv("POSTHOG_API_KEY", ""),
			Endpoint: getEnv("POSTHOG_ENDPOINT", ""),
		},
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		PersistTimeout: getEnvDuration("PERSIST_TIMEOUT", 3*time.Second),
		HealthTimeout:  getEnvDuration("HEALTH_CHECK_TIMEOUT", 2*time.Second),
		MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY", 64<<10)),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}
	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GRPCPort == "" {
		return fmt.Errorf("GRPC_PORT cannot be empty")
	}
	if c.LeadStore && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when the lead store is enabled")
	}
	switch c.Completion.Provider {
	case completion.ProviderNone, "", completion.ProviderOllama:
	case completion.ProviderOpenAI, completion.ProviderAnthropic, completion.ProviderGemini:
		if c.Completion.APIKey == "" {
			return fmt.Errorf("COMPLETION_API_KEY is required for provider %q", c.Completion.Provider)
		}
	default:
		return fmt.Errorf("unknown COMPLETION_PROVIDER %q", c.Completion.Provider)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.Env != "" {
		return c.Env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Origins returns the CORS allow list. Development allows any origin.
func (c *Config) Origins() []string {
	if len(c.AllowedOrigins) == 0 && c.IsDevelopment() {
		return []string{"*"}
	}
	return c.AllowedOrigins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
