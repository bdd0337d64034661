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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetIngestRatePerSec() float64
	GetIngestBurst() int
}

// SchedulerConfig provides settings for the asynq scheduler and its redis backend.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// WhatsAppConfig provides settings for the messaging gateway and the
// template approval authority.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetTemplateAPIURL() string
	GetTemplateAPIKey() string
	GetFreeformWindow() time.Duration
}

// ClassifierConfig provides settings for the semantic lead state classifier.
type ClassifierConfig interface {
	GetGeminiAPIKey() string
	GetClassifierModel() string
	GetClassifierTimeout() time.Duration
	IsSemanticEnabled() bool
}

// FollowUpConfig provides settings for the follow-up sequencer.
type FollowUpConfig interface {
	GetStageDelays() []time.Duration
	GetMaxStages() int
	GetBatchSize() int
	GetPollInterval() time.Duration
	GetProcessWorkers() int
	GetStaleClaimAge() time.Duration
}

// ApprovalConfig provides settings for the template approval manager.
type ApprovalConfig interface {
	GetApprovalCheckInterval() time.Duration
	GetApprovalLeaseTTL() time.Duration
	GetApprovalSubmitRate() float64
	GetTemplateLanguage() string
}

// EmailConfig provides settings for operator alert email.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetOperatorAlertEmail() string
	IsEmailEnabled() bool
}

// StorageConfig provides settings for MinIO S3-compatible storage used for
// template header media samples.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketTemplateMedia() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	IngestRatePerSec         float64
	IngestBurst              int
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	WhatsAppURL              string
	WhatsAppKey              string
	TemplateAPIURL           string
	TemplateAPIKey           string
	FreeformWindow           time.Duration
	GeminiAPIKey             string
	ClassifierModel          string
	ClassifierTimeout        time.Duration
	FollowUpStageDelays      []time.Duration
	FollowUpMaxStages        int
	FollowUpBatchSize        int
	FollowUpPollInterval     time.Duration
	FollowUpProcessWorkers   int
	FollowUpStaleClaimAge    time.Duration
	ApprovalCheckInterval    time.Duration
	ApprovalLeaseTTL         time.Duration
	ApprovalSubmitRate       float64
	TemplateLanguage         string
	SMTPHost                 string
	SMTPPort                 int
	SMTPUsername             string
	SMTPPassword             string
	EmailFromName            string
	EmailFromAddress         string
	OperatorAlertEmail       string
	EmailEnabled             bool
	MinIOEndpoint            string
	MinIOAccessKey           string
	MinIOSecretKey           string
	MinIOUseSSL              bool
	MinioBucketTemplateMedia string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool        { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string     { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool      { return c.CORSAllowCreds }
func (c *Config) GetIngestRatePerSec() float64 { return c.IngestRatePerSec }
func (c *Config) GetIngestBurst() int          { return c.IngestBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string           { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string           { return c.WhatsAppKey }
func (c *Config) GetTemplateAPIURL() string        { return c.TemplateAPIURL }
func (c *Config) GetTemplateAPIKey() string        { return c.TemplateAPIKey }
func (c *Config) GetFreeformWindow() time.Duration { return c.FreeformWindow }

// ClassifierConfig implementation
func (c *Config) GetGeminiAPIKey() string             { return c.GeminiAPIKey }
func (c *Config) GetClassifierModel() string          { return c.ClassifierModel }
func (c *Config) GetClassifierTimeout() time.Duration { return c.ClassifierTimeout }
func (c *Config) IsSemanticEnabled() bool             { return c.GeminiAPIKey != "" }

// FollowUpConfig implementation
func (c *Config) GetStageDelays() []time.Duration { return c.FollowUpStageDelays }
func (c *Config) GetMaxStages() int               { return c.FollowUpMaxStages }
func (c *Config) GetBatchSize() int               { return c.FollowUpBatchSize }
func (c *Config) GetPollInterval() time.Duration  { return c.FollowUpPollInterval }
func (c *Config) GetProcessWorkers() int          { return c.FollowUpProcessWorkers }
func (c *Config) GetStaleClaimAge() time.Duration { return c.FollowUpStaleClaimAge }

// ApprovalConfig implementation
func (c *Config) GetApprovalCheckInterval() time.Duration { return c.ApprovalCheckInterval }
func (c *Config) GetApprovalLeaseTTL() time.Duration      { return c.ApprovalLeaseTTL }
func (c *Config) GetApprovalSubmitRate() float64          { return c.ApprovalSubmitRate }
func (c *Config) GetTemplateLanguage() string             { return c.TemplateLanguage }

// EmailConfig implementation
func (c *Config) GetSMTPHost() string           { return c.SMTPHost }
func (c *Config) GetSMTPPort() int              { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string       { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string       { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string      { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string   { return c.EmailFromAddress }
func (c *Config) GetOperatorAlertEmail() string { return c.OperatorAlertEmail }
func (c *Config) IsEmailEnabled() bool          { return c.EmailEnabled }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string            { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string           { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string           { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketTemplateMedia() string { return c.MinioBucketTemplateMedia }
func (c *Config) IsMinIOEnabled() bool                { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		IngestRatePerSec:         mustFloat(getEnv("INGEST_RATE_PER_SEC", "5")),
		IngestBurst:              mustInt(getEnv("INGEST_BURST", "20")),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:         mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		WhatsAppURL:              getEnv("WHATSAPP_API_URL", ""),
		WhatsAppKey:              getEnv("WHATSAPP_API_KEY", ""),
		TemplateAPIURL:           getEnv("WHATSAPP_TEMPLATE_API_URL", ""),
		TemplateAPIKey:           getEnv("WHATSAPP_TEMPLATE_API_KEY", ""),
		FreeformWindow:           mustDuration(getEnv("WHATSAPP_FREEFORM_WINDOW", "24h")),
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		ClassifierModel:          getEnv("CLASSIFIER_MODEL", "gemini-2.0-flash"),
		ClassifierTimeout:        mustDuration(getEnv("CLASSIFIER_TIMEOUT", "10s")),
		FollowUpStageDelays:      splitDurations(getEnv("FOLLOWUP_STAGE_DELAYS", "48h,120h,216h,336h")),
		FollowUpMaxStages:        mustInt(getEnv("FOLLOWUP_MAX_STAGES", "4")),
		FollowUpBatchSize:        mustInt(getEnv("FOLLOWUP_BATCH_SIZE", "50")),
		FollowUpPollInterval:     mustDuration(getEnv("FOLLOWUP_POLL_INTERVAL", "30s")),
		FollowUpProcessWorkers:   mustInt(getEnv("FOLLOWUP_PROCESS_WORKERS", "5")),
		FollowUpStaleClaimAge:    mustDuration(getEnv("FOLLOWUP_STALE_CLAIM_AGE", "10m")),
		ApprovalCheckInterval:    mustDuration(getEnv("APPROVAL_CHECK_INTERVAL", "2h")),
		ApprovalLeaseTTL:         mustDuration(getEnv("APPROVAL_LEASE_TTL", "15m")),
		ApprovalSubmitRate:       mustFloat(getEnv("APPROVAL_SUBMIT_RATE", "0.5")),
		TemplateLanguage:         getEnv("TEMPLATE_LANGUAGE", "en"),
		SMTPHost:                 getEnv("SMTP_HOST", ""),
		SMTPPort:                 mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:             getEnv("SMTP_USERNAME", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		EmailFromName:            getEnv("EMAIL_FROM_NAME", "Follow-Up Engine"),
		EmailFromAddress:         getEnv("EMAIL_FROM_ADDRESS", ""),
		OperatorAlertEmail:       getEnv("OPERATOR_ALERT_EMAIL", ""),
		EmailEnabled:             emailEnabled,
		MinIOEndpoint:            getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:           getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:           getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:              strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketTemplateMedia: getEnv("MINIO_BUCKET_TEMPLATE_MEDIA", "template-media"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && (cfg.SMTPHost == "" || cfg.EmailFromAddress == "") {
		return nil, fmt.Errorf("SMTP_HOST and EMAIL_FROM_ADDRESS are required when EMAIL_ENABLED is true")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if len(cfg.FollowUpStageDelays) < cfg.FollowUpMaxStages {
		return nil, fmt.Errorf("FOLLOWUP_STAGE_DELAYS must list a delay per stage (%d)", cfg.FollowUpMaxStages)
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

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
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

func splitDurations(value string) []time.Duration {
	parts := splitCSV(value)
	results := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil || d <= 0 {
			continue
		}
		results = append(results, d)
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
