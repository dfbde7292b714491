package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envConfigPath = "TRADEBOT_CONFIG"

	envTelegramToken = "TELEGRAM_API_TOKEN"
	envTransportMode = "BOT_TRANSPORT"
	envDrainTimeout  = "BOT_DRAIN_TIMEOUT_SECONDS"

	envWebhookURL         = "WEBHOOK_URL"
	envExternalURL        = "RENDER_EXTERNAL_URL"
	envServiceName        = "RENDER_SERVICE_NAME"
	envWebhookSecret      = "WEBHOOK_SECRET_TOKEN"
	envDropPendingUpdates = "BOT_DROP_PENDING_UPDATES"
	envAllowedUpdates     = "BOT_ALLOWED_UPDATES"

	envMemoryLimit       = "MEMORY_LIMIT_MB"
	envIntelligentMemory = "ENABLE_INTELLIGENT_MEMORY"
	envDeepLearning      = "ENABLE_DEEP_LEARNING"
	envAdvancedCaching   = "ENABLE_ADVANCED_CACHING"
	envRender            = "RENDER"

	envDatabaseURL = "DATABASE_URL"
	envPort        = "PORT"
)

const (
	TransportWebhook = "webhook"
	TransportPolling = "polling"
)

// Config is the root runtime configuration.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Webhook  WebhookConfig  `json:"webhook"`
	Memory   MemoryConfig   `json:"memory"`
	Database DatabaseConfig `json:"database"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format, verbosity and file sink.
type LoggingConfig struct {
	Format     string `json:"format,omitempty"`
	Level      string `json:"level,omitempty"`
	AddSource  bool   `json:"add_source,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

// TelegramConfig configures the transport client.
type TelegramConfig struct {
	Token               string `json:"token"`
	Transport           string `json:"transport"`
	DrainTimeoutSeconds int    `json:"drain_timeout_seconds"`
}

// WebhookConfig holds the layered signals the webhook URL is resolved from.
type WebhookConfig struct {
	URL                string   `json:"url"`
	ExternalURL        string   `json:"external_url"`
	ServiceName        string   `json:"service_name"`
	SecretToken        string   `json:"secret_token"`
	DropPendingUpdates *bool    `json:"drop_pending_updates,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
}

// MemoryConfig declares the memory budget and requested feature toggles.
type MemoryConfig struct {
	LimitMB           int  `json:"limit_mb"`
	IntelligentMemory bool `json:"intelligent_memory"`
	DeepLearning      bool `json:"deep_learning"`
	AdvancedCaching   bool `json:"advanced_caching"`
	RenderPreset      bool `json:"render_preset"`
}

// DatabaseConfig configures the user store.
type DatabaseConfig struct {
	URL string `json:"url"`
}

// GatewayConfig configures HTTP bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{Transport: TransportWebhook},
		Memory: MemoryConfig{
			LimitMB:         512,
			AdvancedCaching: true,
		},
	}
}

// LoadConfig loads .env, an optional config.json, and applies environment overrides.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := Default()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DropPending reports whether pending updates are dropped on webhook registration.
//
// Unset means true.
func (c WebhookConfig) DropPending() bool {
	if c.DropPendingUpdates == nil {
		return true
	}

	return *c.DropPendingUpdates
}

// UsePolling reports whether the long-poll transport is selected.
func (c TelegramConfig) UsePolling() bool {
	return strings.EqualFold(strings.TrimSpace(c.Transport), TransportPolling)
}

// loadDotEnv loads .env from the working directory without overriding the process environment.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

// applyEnvOverrides injects env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	overrideString(&cfg.Telegram.Token, envTelegramToken)
	overrideString(&cfg.Telegram.Transport, envTransportMode)
	overrideString(&cfg.Webhook.URL, envWebhookURL)
	overrideString(&cfg.Webhook.ExternalURL, envExternalURL)
	overrideString(&cfg.Webhook.ServiceName, envServiceName)
	overrideString(&cfg.Webhook.SecretToken, envWebhookSecret)
	overrideString(&cfg.Database.URL, envDatabaseURL)

	if raw := strings.TrimSpace(os.Getenv(envAllowedUpdates)); raw != "" {
		cfg.Webhook.AllowedUpdates = parseCSV(raw)
	}

	if raw := strings.TrimSpace(os.Getenv(envDropPendingUpdates)); raw != "" {
		drop := parseBool(raw)
		cfg.Webhook.DropPendingUpdates = &drop
	}

	overrideBool(&cfg.Memory.IntelligentMemory, envIntelligentMemory)
	overrideBool(&cfg.Memory.DeepLearning, envDeepLearning)
	overrideBool(&cfg.Memory.AdvancedCaching, envAdvancedCaching)
	if strings.TrimSpace(os.Getenv(envRender)) != "" {
		cfg.Memory.RenderPreset = true
	}

	if err := overrideInt(&cfg.Memory.LimitMB, envMemoryLimit); err != nil {
		return err
	}
	if err := overrideInt(&cfg.Telegram.DrainTimeoutSeconds, envDrainTimeout); err != nil {
		return err
	}
	if err := overrideInt(&cfg.Gateway.Port, envPort); err != nil {
		return err
	}

	return nil
}

func overrideString(target *string, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

func overrideBool(target *bool, key string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = parseBool(value)
	}
}

func overrideInt(target *int, key string) error {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}

	*target = parsed
	return nil
}

func parseBool(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TRADEBOT_CONFIG first, then cwd-local fallback paths. No file
// is not an error; the bot runs from environment alone.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
