package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Anthropic AnthropicConfig
	Intake    IntakeConfig
	Log       LogConfig
	Events    EventsConfig
	Sheets    SheetsConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type IntakeConfig struct {
	Concurrency int
}

type LogConfig struct {
	Level string
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
	Queue    string
}

type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Anthropic: AnthropicConfig{
			BaseURL:   "https://api.anthropic.com/v1",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1500,
			Timeout:   60 * time.Second,
		},
		Intake: IntakeConfig{
			Concurrency: 4,
		},
		Log: LogConfig{
			Level: "info",
		},
		Events: EventsConfig{
			Exchange: "gastos",
			Queue:    "gastos.invoices",
		},
		Sheets: SheetsConfig{
			SheetName: "Reporte",
		},
	}
}

// ErrMissingAPIKey is returned by RequireAPIKey when no key is configured.
var ErrMissingAPIKey = errors.New("missing required config: Anthropic API key")

// Load reads configuration in this order, later sources winning:
// defaults, the JSON file at $XDG_CONFIG_HOME/gastos/config.json, a .env
// file in the working directory, GASTOS_* environment variables. Secrets
// are never read from the config file; when absent from the environment
// they come from $XDG_DATA_HOME/gastos/secrets.json.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
	settings, err := readJSONFile(configFilePath())
	if err != nil {
		slog.Warn("could not read config file, using defaults", "error", err)
	}
	secrets, err := readJSONFile(secretsFilePath())
	if err != nil {
		slog.Warn("could not read secrets file", "error", err)
	}
	return loadWith(settings, secrets)
}

type lookuper interface {
	lookup(key string) (string, bool)
}

func loadWith(settings *jsonFile, secrets lookuper) (Config, error) {
	cfg := defaults()
	if err := applyFile(&cfg, settings); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	applySecrets(&cfg, secrets)
	return cfg, nil
}

// RequireAPIKey checks the extraction credentials. Only intake needs them,
// so Load does not fail without a key.
func RequireAPIKey(cfg Config) error {
	if strings.TrimSpace(cfg.Anthropic.APIKey) == "" {
		return fmt.Errorf("%w. Set it via environment variable GASTOS_ANTHROPIC_API_KEY or in %s", ErrMissingAPIKey, secretsFilePath())
	}
	return nil
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
