package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	cmdpkg "github.com/stupiduntilnot/tldrbot/internal/commander"
	"github.com/stupiduntilnot/tldrbot/internal/config"
	"github.com/stupiduntilnot/tldrbot/internal/db"
	"github.com/stupiduntilnot/tldrbot/internal/dummy"
	"github.com/stupiduntilnot/tldrbot/internal/gemini"
	"github.com/stupiduntilnot/tldrbot/internal/logging"
	modelpkg "github.com/stupiduntilnot/tldrbot/internal/model"
	"github.com/stupiduntilnot/tldrbot/internal/openai"
	"github.com/stupiduntilnot/tldrbot/internal/telegram"
	"github.com/stupiduntilnot/tldrbot/internal/tldr"
)

// app holds what every subcommand needs: configuration, a logger and the
// database.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *sql.DB
	closeLog func()
}

func openApp(v *viper.Viper, opts ...config.Option) (*app, error) {
	cfg, err := config.Load(v, opts...)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		closeLog()
		return nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		closeLog()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return &app{cfg: cfg, logger: logger, db: database, closeLog: closeLog}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.closeLog()
}

func newCommander(cfg *config.Config) (cmdpkg.Commander, error) {
	switch cfg.Commander {
	case "telegram":
		return telegram.NewClient(cfg.TelegramAPIBase, time.Duration(cfg.PollTimeout+20)*time.Second), nil
	case "dummy":
		return dummy.NewCommander(cfg.DummyCommanderScript, cfg.DummySendScript)
	default:
		return nil, fmt.Errorf("unsupported commander: %s", cfg.Commander)
	}
}

func newModelProvider(ctx context.Context, cfg *config.Config) (modelpkg.Provider, error) {
	connect := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	read := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	switch cfg.ModelProvider {
	case "openai":
		return openai.NewClient(openai.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			ConnectTimeout: connect,
			ReadTimeout:    read,
		}), nil
	case "gemini":
		return gemini.NewProvider(ctx, gemini.Config{
			APIKey:         cfg.GeminiAPIKey,
			BaseURL:        cfg.GeminiBaseURL,
			ConnectTimeout: connect,
			ReadTimeout:    read,
		})
	case "dummy":
		return dummy.NewProvider(cfg.Model, cfg.DummyProviderScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}

func newThrottle(cfg *config.Config) func() tldr.Throttle {
	interval := time.Duration(cfg.ThrottleIntervalSeconds) * time.Second
	if cfg.Throttle == "modulo" {
		return func() tldr.Throttle {
			return tldr.ModuloThrottle{Every: cfg.ThrottleEvery, Delay: interval}
		}
	}
	return func() tldr.Throttle { return tldr.NewIntervalThrottle(interval) }
}

func newSummarizer(a *app, messenger tldr.Messenger, provider modelpkg.Provider) *tldr.Summarizer {
	return &tldr.Summarizer{
		Messenger:   messenger,
		Collector:   &tldr.Collector{Source: &tldr.SQLiteHistory{DB: a.db}},
		Streamer:    &tldr.Streamer{Provider: provider},
		Model:       a.cfg.Model,
		Language:    tldr.Language(a.cfg.Language),
		NewThrottle: newThrottle(&a.cfg),
		Events:      &db.EventLog{DB: a.db},
		Logger:      a.logger,
	}
}
