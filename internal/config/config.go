// Package config provides configuration management for the grievance backend.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (highest priority)
//  2. External .env file in the working directory
//  3. Embedded .env file (fallback, included in binary)
//  4. Hard-coded defaults (lowest priority)
//
// Configuration is loaded once at startup and is not mutated afterwards.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "grievance/internal/errors"
)

// embeddedEnv contains the .env file embedded at build time.
//
// The embedded file only carries template values; real credentials must come
// from the environment.
//
//go:embed .env
var embeddedEnv string

// Config holds all application configuration.
type Config struct {
	Port      string // HTTP listen port
	PublicURL string // externally reachable base URL, used in SMS and evidence links

	// Telephony (required)
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioAPIKeySID    string
	TwilioAPIKeySecret string
	TwilioPhoneNumber  string
	AuditCallTarget    string // who receives audit calls, "client:citizen" by default

	// Generative AI
	GeminiAPIKey string
	GeminiModel  string
	GeminiRPM    int // client-side request budget per minute, 0 = unlimited

	// Mailbox polling (agent disabled if IMAPUser is empty)
	IMAPHost          string
	IMAPPort          int
	IMAPUser          string
	IMAPPassword      string
	IMAPAuthTimeout   time.Duration
	EmailPollInterval time.Duration
	EmailStartDelay   time.Duration

	// Outbound email (optional)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	// Officials channel (optional)
	TelegramBotToken string
	TelegramChatID   string

	// Evidence blobs: local directory, or GCS when GCSBucket is set
	UploadDir          string
	GCSBucket          string
	GCSCredentialsFile string

	// TrueType font for runes the Go fonts lack in the summary image,
	// e.g. NotoSansDevanagari-Regular.ttf
	SummaryFontFile string

	// Persistence and shared state (optional)
	DataDir  string // badger directory; empty keeps complaints in memory
	RedisURL string // audit registry; empty keeps it in memory
	AuditTTL time.Duration

	NotifyWorkers int
	HTTPTimeout   time.Duration

	LogLevel  string
	LogJSON   bool
	DebugMode bool // skip outbound calls, log instead
}

// LoadConfig loads configuration from the layered sources and validates it.
func LoadConfig() (*Config, error) {
	return loadLayers(".env")
}

func loadLayers(envFile string) (*Config, error) {
	// godotenv.Load never overrides keys that are already set, so the
	// external file goes first and the embedded file only fills the gaps.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, apperrors.NewConfigError(envFile, err.Error())
	}
	envMap, err := godotenv.Unmarshal(embeddedEnv)
	if err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the current process environment without validating it.
func FromEnv() *Config {
	port := getEnvOrDefault("PORT", "3000")
	return &Config{
		Port:      port,
		PublicURL: strings.TrimRight(getEnvOrDefault("PUBLIC_URL", "http://localhost:"+port), "/"),

		TwilioAccountSID:   strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:    strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		TwilioAPIKeySID:    strings.TrimSpace(os.Getenv("TWILIO_API_KEY_SID")),
		TwilioAPIKeySecret: strings.TrimSpace(os.Getenv("TWILIO_API_KEY_SECRET")),
		TwilioPhoneNumber:  strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER")),
		AuditCallTarget:    getEnvOrDefault("AUDIT_CALL_TARGET", "client:citizen"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiRPM:    getEnvInt("GEMINI_RPM", 15),

		IMAPHost:          getEnvOrDefault("IMAP_HOST", "imap.gmail.com"),
		IMAPPort:          getEnvInt("IMAP_PORT", 993),
		IMAPUser:          os.Getenv("IMAP_USER"),
		IMAPPassword:      os.Getenv("IMAP_PASSWORD"),
		IMAPAuthTimeout:   getEnvDuration("IMAP_AUTH_TIMEOUT", 3*time.Second),
		EmailPollInterval: getEnvDuration("EMAIL_POLL_INTERVAL", 30*time.Second),
		EmailStartDelay:   getEnvDuration("EMAIL_START_DELAY", 5*time.Second),

		SMTPHost:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		UploadDir:          getEnvOrDefault("UPLOAD_DIR", "public/uploads"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		SummaryFontFile:    os.Getenv("SUMMARY_FONT_FILE"),

		DataDir:  os.Getenv("DATA_DIR"),
		RedisURL: os.Getenv("REDIS_URL"),
		AuditTTL: getEnvDuration("AUDIT_TTL", 24*time.Hour),

		NotifyWorkers: getEnvInt("NOTIFY_WORKERS", 4),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogJSON:   getEnvBool("LOG_JSON", false),
		DebugMode: getEnvBool("DEBUG_MODE", false),
	}
}

// Validate checks that required settings are present and values are sensible.
//
// Telephony credentials are mandatory; the server refuses to start without them.
func (c *Config) Validate() error {
	required := []struct{ key, val string }{
		{"TWILIO_ACCOUNT_SID", c.TwilioAccountSID},
		{"TWILIO_AUTH_TOKEN", c.TwilioAuthToken},
		{"TWILIO_API_KEY_SID", c.TwilioAPIKeySID},
		{"TWILIO_API_KEY_SECRET", c.TwilioAPIKeySecret},
		{"TWILIO_PHONE_NUMBER", c.TwilioPhoneNumber},
	}
	for _, r := range required {
		if r.val == "" {
			return apperrors.NewConfigError(r.key, "environment variable is required")
		}
	}
	if !strings.HasPrefix(c.TwilioAccountSID, "AC") {
		return apperrors.NewConfigError("TWILIO_ACCOUNT_SID", "must start with AC")
	}
	if !strings.HasPrefix(c.TwilioAPIKeySID, "SK") {
		return apperrors.NewConfigError("TWILIO_API_KEY_SID", "must start with SK")
	}
	if c.NotifyWorkers < 1 {
		return apperrors.NewConfigError("NOTIFY_WORKERS", fmt.Sprintf("must be at least 1, got %d", c.NotifyWorkers))
	}
	if c.EmailPollInterval <= 0 {
		return apperrors.NewConfigError("EMAIL_POLL_INTERVAL", "must be positive")
	}
	return nil
}

// EmailEnabled reports whether mailbox credentials are configured.
func (c *Config) EmailEnabled() bool {
	return c.IMAPUser != "" && c.IMAPPassword != ""
}

// CredentialReport is the masked credential summary served by the
// diagnostics endpoint and logged at startup.
type CredentialReport struct {
	AccountSID     string      `json:"accountSid"`
	APIKeySID      string      `json:"apiKeySid"`
	HasAuthToken   bool        `json:"hasAuthToken"`
	HasAPISecret   bool        `json:"hasApiSecret"`
	HasTwilioPhone bool        `json:"hasTwilioPhone"`
	HasGeminiKey   bool        `json:"hasGeminiKey"`
	HasMailbox     bool        `json:"hasMailbox"`
	FormatCheck    FormatCheck `json:"formatCheck"`
}

// FormatCheck reports whether the SIDs carry the expected prefixes.
type FormatCheck struct {
	AccountSIDValid bool `json:"accountSidValid"`
	APIKeySIDValid  bool `json:"apiKeySidValid"`
}

// Credentials summarizes which secrets are present without revealing them.
func (c *Config) Credentials() CredentialReport {
	return CredentialReport{
		AccountSID:     maskedEnds(c.TwilioAccountSID),
		APIKeySID:      maskedEnds(c.TwilioAPIKeySID),
		HasAuthToken:   c.TwilioAuthToken != "",
		HasAPISecret:   c.TwilioAPIKeySecret != "",
		HasTwilioPhone: c.TwilioPhoneNumber != "",
		HasGeminiKey:   c.GeminiAPIKey != "",
		HasMailbox:     c.EmailEnabled(),
		FormatCheck: FormatCheck{
			AccountSIDValid: strings.HasPrefix(c.TwilioAccountSID, "AC"),
			APIKeySIDValid:  strings.HasPrefix(c.TwilioAPIKeySID, "SK"),
		},
	}
}

// maskedEnds keeps the first six and last four characters.
func maskedEnds(s string) string {
	if s == "" {
		return "MISSING"
	}
	if len(s) <= 10 {
		return Masked(s)
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// Masked returns the first six characters of a secret followed by an ellipsis,
// for startup diagnostics.
func Masked(s string) string {
	if len(s) <= 6 {
		return strings.Repeat("*", len(s))
	}
	return s[:6] + "..."
}

// getEnvOrDefault returns the environment variable value or a default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an integer or a default if not set/invalid
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings like "5s", "10m", "1h30m"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
