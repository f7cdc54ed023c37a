package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"OPENAI_MODEL_CHAT", "OPENAI_MODEL_ENRICH", "PROMPT_PATH", "CARD_FONT_PATH",
		"CARD_BOLD_FONT_PATH", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET",
		"S3_REGION", "S3_USE_SSL", "NOTIFY_CHANNEL", "PERSIST_TURNS", "ENRICH_CARDS", "HISTORY_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileWithDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
databaseURL: postgres://localhost/intake
openAIAPIKey: sk-test
storage:
  endpoint: localhost:9000
signedURLTTL: 30m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gpt-4o", cfg.ChatModel)
	assert.Equal(t, "gpt-4o", cfg.EnrichModel)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.True(t, cfg.PersistTurns)
	assert.True(t, cfg.EnrichCards)
	assert.Equal(t, "medical-records", cfg.Storage.Bucket)
	assert.Equal(t, 30*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, 60*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "encounter_created", cfg.NotifyChannel)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
port: "9000"
databaseURL: postgres://file/intake
openAIAPIKey: sk-file
persistTurns: true
storage:
  endpoint: file:9000
`)
	t.Setenv("DATABASE_URL", "postgres://env/intake")
	t.Setenv("OPENAI_MODEL_ENRICH", "gpt-4o-mini")
	t.Setenv("PERSIST_TURNS", "false")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("HISTORY_LIMIT", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres://env/intake", cfg.DatabaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.EnrichModel)
	assert.False(t, cfg.PersistTurns)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, 8, cfg.HistoryLimit)
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env/intake")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("S3_ENDPOINT", "minio:9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "openAIAPIKey: sk\n"))
	assert.ErrorContains(t, err, "databaseURL is required")

	t.Setenv("DATABASE_URL", "postgres://env/intake")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	_, err = Load(writeConfig(t, "port: \"8080\"\n"))
	assert.ErrorContains(t, err, "openAIAPIKey is required")

	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("PERSIST_TURNS", "maybe")
	_, err = Load(writeConfig(t, ""))
	assert.ErrorContains(t, err, "PERSIST_TURNS must be a boolean")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "port: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}
