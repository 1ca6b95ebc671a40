package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "grievance/internal/errors"
)

func setTwilioEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1234567890")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_API_KEY_SID", "SK1234567890")
	t.Setenv("TWILIO_API_KEY_SECRET", "secret")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550001111")
}

func TestFromEnvDefaults(t *testing.T) {
	setTwilioEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("EMAIL_POLL_INTERVAL", "")

	cfg := FromEnv()
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.PublicURL)
	assert.Equal(t, 30*time.Second, cfg.EmailPollInterval)
	assert.Equal(t, 3*time.Second, cfg.IMAPAuthTimeout)
	assert.Equal(t, "client:citizen", cfg.AuditCallTarget)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	setTwilioEnv(t)
	t.Setenv("PUBLIC_URL", "https://civic.example.org/")
	t.Setenv("EMAIL_POLL_INTERVAL", "1m")
	t.Setenv("NOTIFY_WORKERS", "8")
	t.Setenv("LOG_JSON", "true")

	cfg := FromEnv()
	assert.Equal(t, "https://civic.example.org", cfg.PublicURL)
	assert.Equal(t, time.Minute, cfg.EmailPollInterval)
	assert.Equal(t, 8, cfg.NotifyWorkers)
	assert.True(t, cfg.LogJSON)
}

// unsetForTest clears keys for the duration of the test and restores them
// afterwards, including the ones the loader writes into the environment.
func unsetForTest(t *testing.T, keys ...string) {
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func unsetEmbeddedKeys(t *testing.T) {
	embedded, err := godotenv.Unmarshal(embeddedEnv)
	require.NoError(t, err)
	for k := range embedded {
		unsetForTest(t, k)
	}
}

func TestLoadLayersPrecedence(t *testing.T) {
	setTwilioEnv(t)
	unsetEmbeddedKeys(t)
	unsetForTest(t, "PUBLIC_URL")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT=8080\nIMAP_HOST=imap.example.org\nGEMINI_MODEL=file-model\n"), 0600))
	t.Setenv("GEMINI_MODEL", "env-model")

	cfg, err := loadLayers(envFile)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port, "external file beats embedded")
	assert.Equal(t, "imap.example.org", cfg.IMAPHost)
	assert.Equal(t, "env-model", cfg.GeminiModel, "environment beats external file")
	assert.Equal(t, 993, cfg.IMAPPort, "embedded fills the gaps")
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
}

func TestLoadLayersWithoutExternalFile(t *testing.T) {
	setTwilioEnv(t)
	unsetEmbeddedKeys(t)

	cfg, err := loadLayers(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantKey string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing account sid", func(c *Config) { c.TwilioAccountSID = "" }, "TWILIO_ACCOUNT_SID"},
		{"bad account sid prefix", func(c *Config) { c.TwilioAccountSID = "XX123" }, "TWILIO_ACCOUNT_SID"},
		{"bad api key prefix", func(c *Config) { c.TwilioAPIKeySID = "AK123" }, "TWILIO_API_KEY_SID"},
		{"missing phone", func(c *Config) { c.TwilioPhoneNumber = "" }, "TWILIO_PHONE_NUMBER"},
		{"zero workers", func(c *Config) { c.NotifyWorkers = 0 }, "NOTIFY_WORKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setTwilioEnv(t)
			cfg := FromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsConfig(err))
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}
}

func TestMasked(t *testing.T) {
	assert.Equal(t, "AC1234...", Masked("AC1234567890"))
	assert.Equal(t, "***", Masked("abc"))
}

func TestCredentialsReport(t *testing.T) {
	setTwilioEnv(t)
	cfg := FromEnv()
	r := cfg.Credentials()

	assert.True(t, r.HasAuthToken)
	assert.True(t, r.FormatCheck.AccountSIDValid)
	assert.True(t, r.FormatCheck.APIKeySIDValid)
	assert.NotContains(t, r.AccountSID, cfg.TwilioAccountSID[6:len(cfg.TwilioAccountSID)-4])

	cfg.TwilioAPIKeySID = ""
	assert.Equal(t, "MISSING", cfg.Credentials().APIKeySID)
}
