package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/tldrbot/internal/bot"
	"github.com/stupiduntilnot/tldrbot/internal/metrics"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			commander, err := newCommander(&a.cfg)
			if err != nil {
				return err
			}
			provider, err := newModelProvider(ctx, &a.cfg)
			if err != nil {
				return err
			}

			b, err := bot.New(bot.Config{
				Username:      a.cfg.BotUsername,
				PollTimeout:   a.cfg.PollTimeout,
				Sleep:         time.Duration(a.cfg.SleepSeconds) * time.Second,
				MaxHours:      a.cfg.MaxHours,
				MaxConcurrent: a.cfg.MaxConcurrent,
				Retention:     time.Duration(a.cfg.RetentionHours) * time.Hour,
				PruneEvery:    time.Hour,
			}, bot.Deps{
				Commander:  commander,
				Provider:   provider,
				Summarizer: newSummarizer(a, commander, provider),
				DB:         a.db,
				Logger:     a.logger,
			})
			if err != nil {
				return err
			}

			if a.cfg.MetricsAddr != "" {
				srv := serveMetrics(a.cfg.MetricsAddr, a.logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.logger.Info("tldrbot starting",
				zap.String("commander", a.cfg.Commander),
				zap.String("provider", a.cfg.ModelProvider),
				zap.String("model", a.cfg.Model),
				zap.String("throttle", a.cfg.Throttle),
				zap.String("language", a.cfg.Language),
			)
			err = b.Run(ctx)
			a.logger.Info("tldrbot stopped")
			return err
		},
	}
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
