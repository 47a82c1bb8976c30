// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides Redis connection settings for dedup and task queues.
type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
}

// JWTConfig provides JWT validation settings for the diagnostics middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// MetaWebhookConfig provides settings for verifying Meta lead webhooks.
type MetaWebhookConfig interface {
	GetMetaAppSecret() string
	GetMetaVerifyToken() string
	GetMetaGraphToken() string
}

// CRMConfig provides settings for the CRM REST client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMLocationID() string
	IsCRMEnabled() bool
}

// AgentConfig provides settings for the reply-generation model.
type AgentConfig interface {
	GetModelAPIKey() string
	GetModelBaseURL() string
	GetModelName() string
	IsAgentEnabled() bool
}

// EmailConfig provides SMTP settings for sales notifications.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSalesEmailAddress() string
}

// ConversationConfig provides tunables for the qualification pipeline.
type ConversationConfig interface {
	GetScoringConfigPath() string
	GetIdleExpiry() time.Duration
	GetDedupWindow() time.Duration
	GetMaxWriteAttempts() int
	GetWriteBackoffBase() time.Duration
}

// SweepConfig provides settings for the idle-expiry sweeper.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetIdleExpiry() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	JWTAccessSecret   string
	CORSAllowAll      bool
	CORSOrigins       []string
	CORSAllowCreds    bool
	MetaAppSecret     string
	MetaVerifyToken   string
	MetaGraphToken    string
	CRMBaseURL        string
	CRMAPIKey         string
	CRMLocationID     string
	ModelAPIKey       string
	ModelBaseURL      string
	ModelName         string
	EmailEnabled      bool
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	EmailFromName     string
	EmailFromAddress  string
	SalesEmailAddress string
	ScoringConfigPath string
	IdleExpiry        time.Duration
	DedupWindow       time.Duration
	MaxWriteAttempts  int
	WriteBackoffBase  time.Duration
	SweepInterval     time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisAddr() string     { return c.RedisAddr }
func (c *Config) GetRedisPassword() string { return c.RedisPassword }
func (c *Config) GetRedisDB() int          { return c.RedisDB }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// MetaWebhookConfig implementation
func (c *Config) GetMetaAppSecret() string   { return c.MetaAppSecret }
func (c *Config) GetMetaVerifyToken() string { return c.MetaVerifyToken }
func (c *Config) GetMetaGraphToken() string  { return c.MetaGraphToken }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string    { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string     { return c.CRMAPIKey }
func (c *Config) GetCRMLocationID() string { return c.CRMLocationID }
func (c *Config) IsCRMEnabled() bool       { return c.CRMAPIKey != "" }

// AgentConfig implementation
func (c *Config) GetModelAPIKey() string  { return c.ModelAPIKey }
func (c *Config) GetModelBaseURL() string { return c.ModelBaseURL }
func (c *Config) GetModelName() string    { return c.ModelName }
func (c *Config) IsAgentEnabled() bool    { return c.ModelAPIKey != "" }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool        { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string     { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string  { return c.EmailFromAddress }
func (c *Config) GetSalesEmailAddress() string { return c.SalesEmailAddress }

// ConversationConfig implementation
func (c *Config) GetScoringConfigPath() string       { return c.ScoringConfigPath }
func (c *Config) GetIdleExpiry() time.Duration       { return c.IdleExpiry }
func (c *Config) GetDedupWindow() time.Duration      { return c.DedupWindow }
func (c *Config) GetMaxWriteAttempts() int           { return c.MaxWriteAttempts }
func (c *Config) GetWriteBackoffBase() time.Duration { return c.WriteBackoffBase }

// SweepConfig implementation
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           mustInt(getEnv("REDIS_DB", "0")),
		JWTAccessSecret:   getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:      corsAllowAll,
		CORSOrigins:       corsOrigins,
		CORSAllowCreds:    strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		MetaAppSecret:     getEnv("META_APP_SECRET", ""),
		MetaVerifyToken:   getEnv("META_VERIFY_TOKEN", ""),
		MetaGraphToken:    getEnv("META_GRAPH_TOKEN", ""),
		CRMBaseURL:        getEnv("CRM_BASE_URL", "https://services.leadconnectorhq.com"),
		CRMAPIKey:         getEnv("CRM_API_KEY", ""),
		CRMLocationID:     getEnv("CRM_LOCATION_ID", ""),
		ModelAPIKey:       getEnv("MODEL_API_KEY", ""),
		ModelBaseURL:      getEnv("MODEL_BASE_URL", "https://api.openai.com/v1"),
		ModelName:         getEnv("MODEL_NAME", "gpt-4o-mini"),
		EmailEnabled:      emailEnabled && smtpHost != "",
		SMTPHost:          smtpHost,
		SMTPPort:          mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Lead Qualification"),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
		SalesEmailAddress: getEnv("SALES_EMAIL_ADDRESS", ""),
		ScoringConfigPath: getEnv("SCORING_CONFIG_PATH", "config/scoring.yaml"),
		IdleExpiry:        mustDuration(getEnv("CONVERSATION_IDLE_EXPIRY", "72h")),
		DedupWindow:       mustDuration(getEnv("DEDUP_WINDOW", "24h")),
		MaxWriteAttempts:  mustInt(getEnv("MAX_WRITE_ATTEMPTS", "3")),
		WriteBackoffBase:  mustDuration(getEnv("WRITE_BACKOFF_BASE", "25ms")),
		SweepInterval:     mustDuration(getEnv("SWEEP_INTERVAL", "15m")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.MetaAppSecret == "" || cfg.MetaVerifyToken == "" {
		return nil, fmt.Errorf("META_APP_SECRET and META_VERIFY_TOKEN are required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.MaxWriteAttempts < 1 {
		return nil, fmt.Errorf("MAX_WRITE_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
