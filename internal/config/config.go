package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds configuration for the bot process.
type Config struct {
	BotToken        string
	BotUsername     string
	TelegramAPIBase string
	PollTimeout     int
	SleepSeconds    int
	Commander       string

	Language      string
	ModelProvider string
	Model         string

	OpenAIBaseURL         string
	OpenAIAPIKey          string
	GeminiAPIKey          string
	GeminiBaseURL         string
	ConnectTimeoutSeconds int
	ReadTimeoutSeconds    int

	Throttle                string
	ThrottleIntervalSeconds int
	ThrottleEvery           int

	MaxHours             int
	MaxConcurrent        int
	RetentionHours       int
	DBPath               string
	LogFile              string
	LogLevel             string
	MetricsAddr          string
	DummyProviderScript  string
	DummyCommanderScript string
	DummySendScript      string
}

// Error reports a missing or invalid configuration value. It is fatal at
// startup.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

var defaults = map[string]any{
	"TLDR_TELEGRAM_API_URL":          "https://api.telegram.org",
	"TLDR_BOT_USERNAME":              "",
	"TLDR_POLL_TIMEOUT":              30,
	"TLDR_SLEEP_SECONDS":             1,
	"TLDR_COMMANDER":                 "telegram",
	"LANGUAGE":                       "",
	"TLDR_MODEL_PROVIDER":            "openai",
	"TLDR_MODEL":                     "llama3.1",
	"TLDR_OPENAI_BASE_URL":           "http://localhost:11434/v1/",
	"TLDR_OPENAI_API_KEY":            "ollama",
	"TLDR_GEMINI_BASE_URL":           "",
	"TLDR_CONNECT_TIMEOUT_SECONDS":   60,
	"TLDR_READ_TIMEOUT_SECONDS":      120,
	"TLDR_THROTTLE":                  "interval",
	"TLDR_THROTTLE_INTERVAL_SECONDS": 2,
	"TLDR_THROTTLE_EVERY":            10,
	"TLDR_MAX_HOURS":                 168,
	"TLDR_MAX_CONCURRENT":            16,
	"TLDR_RETENTION_HOURS":           24 * 30,
	"TLDR_DB_PATH":                   "./tldrbot.db",
	"TLDR_LOG_FILE":                  "bot_logs.log",
	"TLDR_LOG_LEVEL":                 "info",
	"TLDR_METRICS_ADDR":              "",
	"TLDR_DUMMY_PROVIDER_SCRIPT":     "ok",
	"TLDR_DUMMY_COMMANDER_SCRIPT":    "ok",
	"TLDR_DUMMY_SEND_SCRIPT":         "ok",
}

// Option adjusts Load.
type Option func(*loadOptions)

type loadOptions struct {
	skipCommander bool
}

// SkipCommander skips validation of the chat platform settings, for
// commands that never talk to the platform.
func SkipCommander() Option {
	return func(o *loadOptions) { o.skipCommander = true }
}

// Load resolves configuration from v, which defaults to a viper instance
// bound to the process environment.
func Load(v *viper.Viper, opts ...Option) (Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if v == nil {
		v = viper.New()
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := Config{
		BotToken:                strings.TrimSpace(v.GetString("TLDR_BOT_TOKEN")),
		BotUsername:             strings.TrimPrefix(strings.TrimSpace(v.GetString("TLDR_BOT_USERNAME")), "@"),
		PollTimeout:             v.GetInt("TLDR_POLL_TIMEOUT"),
		SleepSeconds:            v.GetInt("TLDR_SLEEP_SECONDS"),
		Commander:               strings.ToLower(v.GetString("TLDR_COMMANDER")),
		Language:                strings.ToUpper(strings.TrimSpace(v.GetString("LANGUAGE"))),
		ModelProvider:           strings.ToLower(v.GetString("TLDR_MODEL_PROVIDER")),
		Model:                   v.GetString("TLDR_MODEL"),
		OpenAIBaseURL:           v.GetString("TLDR_OPENAI_BASE_URL"),
		OpenAIAPIKey:            v.GetString("TLDR_OPENAI_API_KEY"),
		GeminiAPIKey:            v.GetString("GOOGLE_API_KEY"),
		GeminiBaseURL:           v.GetString("TLDR_GEMINI_BASE_URL"),
		ConnectTimeoutSeconds:   v.GetInt("TLDR_CONNECT_TIMEOUT_SECONDS"),
		ReadTimeoutSeconds:      v.GetInt("TLDR_READ_TIMEOUT_SECONDS"),
		Throttle:                strings.ToLower(v.GetString("TLDR_THROTTLE")),
		ThrottleIntervalSeconds: v.GetInt("TLDR_THROTTLE_INTERVAL_SECONDS"),
		ThrottleEvery:           v.GetInt("TLDR_THROTTLE_EVERY"),
		MaxHours:                v.GetInt("TLDR_MAX_HOURS"),
		MaxConcurrent:           v.GetInt("TLDR_MAX_CONCURRENT"),
		RetentionHours:          v.GetInt("TLDR_RETENTION_HOURS"),
		DBPath:                  v.GetString("TLDR_DB_PATH"),
		LogFile:                 v.GetString("TLDR_LOG_FILE"),
		LogLevel:                v.GetString("TLDR_LOG_LEVEL"),
		MetricsAddr:             v.GetString("TLDR_METRICS_ADDR"),
		DummyProviderScript:     v.GetString("TLDR_DUMMY_PROVIDER_SCRIPT"),
		DummyCommanderScript:    v.GetString("TLDR_DUMMY_COMMANDER_SCRIPT"),
		DummySendScript:         v.GetString("TLDR_DUMMY_SEND_SCRIPT"),
	}
	cfg.TelegramAPIBase = fmt.Sprintf("%s/bot%s", strings.TrimRight(v.GetString("TLDR_TELEGRAM_API_URL"), "/"), cfg.BotToken)

	if err := cfg.validate(o); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate(o loadOptions) error {
	if !o.skipCommander {
		switch c.Commander {
		case "telegram":
			if c.BotToken == "" {
				return &Error{Key: "TLDR_BOT_TOKEN", Reason: "is required when TLDR_COMMANDER=telegram"}
			}
		case "dummy":
		default:
			return &Error{Key: "TLDR_COMMANDER", Reason: fmt.Sprintf("unsupported value %q", c.Commander)}
		}
	}

	switch c.ModelProvider {
	case "openai", "dummy":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return &Error{Key: "GOOGLE_API_KEY", Reason: "is required when TLDR_MODEL_PROVIDER=gemini"}
		}
	default:
		return &Error{Key: "TLDR_MODEL_PROVIDER", Reason: fmt.Sprintf("unsupported value %q", c.ModelProvider)}
	}

	switch c.Language {
	case "", "CZ":
	default:
		return &Error{Key: "LANGUAGE", Reason: fmt.Sprintf("unsupported value %q (want CZ or empty)", c.Language)}
	}

	switch c.Throttle {
	case "interval", "modulo":
	default:
		return &Error{Key: "TLDR_THROTTLE", Reason: fmt.Sprintf("unsupported value %q", c.Throttle)}
	}

	if strings.TrimSpace(c.Model) == "" {
		return &Error{Key: "TLDR_MODEL", Reason: "cannot be empty"}
	}

	positives := []struct {
		key   string
		value int
	}{
		{"TLDR_CONNECT_TIMEOUT_SECONDS", c.ConnectTimeoutSeconds},
		{"TLDR_READ_TIMEOUT_SECONDS", c.ReadTimeoutSeconds},
		{"TLDR_THROTTLE_INTERVAL_SECONDS", c.ThrottleIntervalSeconds},
		{"TLDR_THROTTLE_EVERY", c.ThrottleEvery},
		{"TLDR_MAX_HOURS", c.MaxHours},
		{"TLDR_MAX_CONCURRENT", c.MaxConcurrent},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return &Error{Key: p.key, Reason: fmt.Sprintf("must be > 0, got %d", p.value)}
		}
	}
	if c.PollTimeout < 0 {
		return &Error{Key: "TLDR_POLL_TIMEOUT", Reason: fmt.Sprintf("must be >= 0, got %d", c.PollTimeout)}
	}
	if c.RetentionHours < c.MaxHours {
		return &Error{Key: "TLDR_RETENTION_HOURS", Reason: fmt.Sprintf("must be >= TLDR_MAX_HOURS (%d)", c.MaxHours)}
	}
	return nil
}
