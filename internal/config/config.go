package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default YAML config location.
const ConfigPath = "config.yaml"

// StorageConfig points at the S3-compatible bucket holding generated cards.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string        `yaml:"port"`
	LogLevel       string        `yaml:"logLevel"`
	DatabaseURL    string        `yaml:"databaseURL"`
	OpenAIAPIKey   string        `yaml:"openAIAPIKey"`
	OpenAIBaseURL  string        `yaml:"openAIBaseURL"`
	ChatModel      string        `yaml:"chatModel"`
	EnrichModel    string        `yaml:"enrichModel"`
	HistoryLimit   int           `yaml:"historyLimit"`
	PersistTurns   bool          `yaml:"persistTurns"`
	EnrichCards    bool          `yaml:"enrichCards"`
	PromptPath     string        `yaml:"promptPath"`
	FontPath       string        `yaml:"fontPath"`
	BoldFontPath   string        `yaml:"boldFontPath"`
	Storage        StorageConfig `yaml:"storage"`
	SignedURLTTL   time.Duration `yaml:"signedURLTTL"`
	GatewayTimeout time.Duration `yaml:"gatewayTimeout"`
	UploadTimeout  time.Duration `yaml:"uploadTimeout"`
	NotifyChannel  string        `yaml:"notifyChannel"`
}

// Defaults returns the configuration used for keys absent from both the file
// and the environment.
func Defaults() FileConfig {
	return FileConfig{
		Port:           "8080",
		LogLevel:       "info",
		ChatModel:      "gpt-4o",
		HistoryLimit:   20,
		PersistTurns:   true,
		EnrichCards:    true,
		PromptPath:     "prompts/main.md",
		Storage:        StorageConfig{Bucket: "medical-records"},
		SignedURLTTL:   time.Hour,
		GatewayTimeout: 60 * time.Second,
		UploadTimeout:  30 * time.Second,
		NotifyChannel:  "encounter_created",
	}
}

// Load reads config from path (defaults to config.yaml). A .env file and a
// missing YAML file are both optional; environment variables win over the
// file.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.EnrichModel == "" {
		cfg.EnrichModel = cfg.ChatModel
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	strs := map[string]*string{
		"PORT":                &cfg.Port,
		"LOG_LEVEL":           &cfg.LogLevel,
		"DATABASE_URL":        &cfg.DatabaseURL,
		"OPENAI_API_KEY":      &cfg.OpenAIAPIKey,
		"OPENAI_BASE_URL":     &cfg.OpenAIBaseURL,
		"OPENAI_MODEL_CHAT":   &cfg.ChatModel,
		"OPENAI_MODEL_ENRICH": &cfg.EnrichModel,
		"PROMPT_PATH":         &cfg.PromptPath,
		"CARD_FONT_PATH":      &cfg.FontPath,
		"CARD_BOLD_FONT_PATH": &cfg.BoldFontPath,
		"S3_ENDPOINT":         &cfg.Storage.Endpoint,
		"S3_ACCESS_KEY":       &cfg.Storage.AccessKey,
		"S3_SECRET_KEY":       &cfg.Storage.SecretKey,
		"S3_BUCKET":           &cfg.Storage.Bucket,
		"S3_REGION":           &cfg.Storage.Region,
		"NOTIFY_CHANNEL":      &cfg.NotifyChannel,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"PERSIST_TURNS": &cfg.PersistTurns,
		"ENRICH_CARDS":  &cfg.EnrichCards,
		"S3_USE_SSL":    &cfg.Storage.UseSSL,
	}
	for key, dst := range bools {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s must be a boolean: %w", key, err)
		}
		*dst = b
	}
	if v := strings.TrimSpace(os.Getenv("HISTORY_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: HISTORY_LIMIT must be an integer: %w", err)
		}
		cfg.HistoryLimit = n
	}
	return nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.OpenAIAPIKey == "" {
		return errors.New("config: openAIAPIKey is required (set in config.yaml or OPENAI_API_KEY)")
	}
	if cfg.Storage.Endpoint == "" {
		return errors.New("config: storage.endpoint is required (set in config.yaml or S3_ENDPOINT)")
	}
	if cfg.Storage.Bucket == "" {
		return errors.New("config: storage.bucket is required")
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("config: historyLimit must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.SignedURLTTL <= 0 {
		return errors.New("config: signedURLTTL must be positive")
	}
	return nil
}
