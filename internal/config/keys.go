package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "GASTOS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "GASTOS_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "GASTOS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "anthropic.api_key", typ: kString, env: "GASTOS_ANTHROPIC_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Anthropic.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.APIKey },
	},
	{
		key: "anthropic.base_url", typ: kString, env: "GASTOS_ANTHROPIC_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.BaseURL },
	},
	{
		key: "anthropic.model", typ: kString, env: "GASTOS_ANTHROPIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.Model },
	},
	{
		key: "anthropic.max_tokens", typ: kInt, env: "GASTOS_ANTHROPIC_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Anthropic.MaxTokens },
	},
	{
		key: "anthropic.timeout", typ: kDuration, env: "GASTOS_ANTHROPIC_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Anthropic.Timeout },
	},
	{
		key: "intake.concurrency", typ: kInt, env: "GASTOS_INTAKE_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Intake.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Intake.Concurrency },
	},
	{
		key: "log.level", typ: kString, env: "GASTOS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		// The URL carries broker credentials.
		key: "events.amqp_url", typ: kString, env: "GASTOS_EVENTS_AMQP_URL",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Events.AMQPURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.AMQPURL },
	},
	{
		key: "events.exchange", typ: kString, env: "GASTOS_EVENTS_EXCHANGE",
		apply:   func(cfg *Config, v any) { cfg.Events.Exchange = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.Exchange },
	},
	{
		key: "events.queue", typ: kString, env: "GASTOS_EVENTS_QUEUE",
		apply:   func(cfg *Config, v any) { cfg.Events.Queue = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.Queue },
	},
	{
		key: "sheets.spreadsheet_id", typ: kString, env: "GASTOS_SHEETS_SPREADSHEET_ID",
		apply:   func(cfg *Config, v any) { cfg.Sheets.SpreadsheetID = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheets.SpreadsheetID },
	},
	{
		key: "sheets.sheet_name", typ: kString, env: "GASTOS_SHEETS_SHEET_NAME",
		apply:   func(cfg *Config, v any) { cfg.Sheets.SheetName = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheets.SheetName },
	},
	{
		key: "sheets.credentials_file", typ: kString, env: "GASTOS_SHEETS_CREDENTIALS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Sheets.CredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Sheets.CredentialsFile },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func isSecret(key string) bool {
	s, ok := lookupSpec(key)
	return ok && s.secret
}

// parse converts text from the config file, environment or command line
// into the value apply expects.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return raw, nil
}

// applyFile reads settings from the config file. Secrets there are ignored
// and a value of the wrong type is an error.
func applyFile(cfg *Config, f *jsonFile) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok := f.lookup(s.key)
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			return fmt.Errorf("%s in %s: %w", s.key, f.path, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

// applyEnv applies GASTOS_* variables. Bad values keep the earlier setting.
func applyEnv(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("ignoring invalid environment value", "var", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills secrets the environment left empty.
func applySecrets(cfg *Config, secrets lookuper) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, ok := secrets.lookup(s.key); ok && v != "" {
			s.apply(cfg, v)
		}
	}
}
