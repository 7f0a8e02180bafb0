package tldr

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/tldrbot/internal/db"
	"github.com/stupiduntilnot/tldrbot/internal/metrics"
)

// Texts shown to the requesting user.
const (
	PlaceholderText = "Generating TLDR... This may take a moment."
	ErrorPrefix     = "An error occurred: "
)

// Invocation is one /tldr request. ChatID is the channel to summarize and
// UserID the private chat the summary is delivered to.
type Invocation struct {
	ChatID  int64
	UserID  int64
	Hours   int
	Context string
}

// Summarizer runs the summarization pipeline. It is safe for concurrent
// use: every call builds its own window, prompt, reporter and stream.
type Summarizer struct {
	Messenger   Messenger
	Collector   *Collector
	Streamer    *Streamer
	Model       string
	Language    Language
	NewThrottle func() Throttle
	Events      *db.EventLog
	Logger      *zap.Logger

	// Sleep overrides the reporter's throttle pause; used by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Summarize runs one invocation to completion. Every error is reported to
// the user before it is returned.
func (s *Summarizer) Summarize(ctx context.Context, inv Invocation) (*Summary, error) {
	invocationID := uuid.NewString()
	logger := s.logger().With(
		zap.String("invocation_id", invocationID),
		zap.Int64("chat_id", inv.ChatID),
		zap.Int64("user_id", inv.UserID),
		zap.Int("hours", inv.Hours),
		zap.String("model", s.Model),
	)
	startedAt := time.Now()
	rootID, _ := s.Events.Log(nil, db.EventSummaryStarted, map[string]any{
		"invocation":  invocationID,
		"chat_id":     inv.ChatID,
		"user_id":     inv.UserID,
		"hours":       inv.Hours,
		"model":       s.Model,
		"has_context": inv.Context != "",
		"language":    string(s.Language),
	})
	parent := &rootID

	sum, err := s.run(ctx, inv, parent, logger)
	elapsed := time.Since(startedAt)
	if err != nil {
		outcome := outcomeOf(err)
		metrics.SummariesTotal.WithLabelValues(outcome).Inc()
		s.Events.Log(parent, db.EventSummaryFailed, map[string]any{
			"outcome":    outcome,
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		logger.Error("summary failed", zap.String("outcome", outcome), zap.Error(err))
		return sum, err
	}

	metrics.SummariesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	s.Events.Log(parent, db.EventSummaryCompleted, map[string]any{
		"chars":      len([]rune(sum.Text)),
		"edits":      sum.Edits,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	logger.Info("summary completed", zap.Int("edits", sum.Edits), zap.Duration("elapsed", elapsed))
	return sum, nil
}

func (s *Summarizer) run(ctx context.Context, inv Invocation, parent *int64, logger *zap.Logger) (*Summary, error) {
	placeholderID, err := s.Messenger.SendMessage(ctx, inv.UserID, PlaceholderText)
	if err != nil {
		perr := &PlatformError{Op: "send", Err: err}
		s.notify(ctx, inv.UserID, perr, logger)
		return nil, perr
	}
	target := Target{ChatID: inv.UserID, MessageID: placeholderID}

	window, err := s.Collector.Collect(ctx, inv.ChatID, inv.Hours)
	if err != nil {
		s.notify(ctx, inv.UserID, err, logger)
		return nil, err
	}
	s.Events.Log(parent, db.EventHistoryCollected, map[string]any{
		"utterances": len(window.Utterances),
		"since":      window.Since.Unix(),
		"until":      window.Until.Unix(),
	})

	prompt := BuildPrompt(Request{Window: window, Context: inv.Context, Model: s.Model, Language: s.Language})
	s.Events.Log(parent, db.EventPromptBuilt, map[string]any{"chars": len([]rune(prompt))})
	logger.Debug("prompt built", zap.String("prompt", prompt))

	// Edits hang under generation.started once generation is running.
	editParent := parent
	reporter := &Reporter{
		Messenger: s.Messenger,
		Throttle:  s.throttle(),
		Header:    FormatHeader(inv.Hours),
		Sleep:     s.Sleep,
		OnEdit: func(kind, text string) {
			metrics.EditsTotal.WithLabelValues(kind).Inc()
			s.Events.Log(editParent, db.EventSummaryEdited, map[string]any{"kind": kind, "chars": len([]rune(text))})
		},
	}

	genStart := time.Now()
	stream, err := s.Streamer.Open(ctx, s.Model, prompt)
	if err != nil {
		metrics.GenerationDuration.WithLabelValues(metrics.OutcomeGenerationError).Observe(time.Since(genStart).Seconds())
		if notifyErr := reporter.Fail(ctx, target, err); notifyErr != nil {
			logger.Error("failed to report generation error", zap.Error(notifyErr))
		}
		return nil, err
	}
	if genID, err := s.Events.Log(parent, db.EventGenerationStarted, map[string]any{"model": s.Model}); err == nil && genID != 0 {
		editParent = &genID
	}

	sum, err := reporter.Report(ctx, target, stream)
	metrics.GenerationDuration.WithLabelValues(outcomeOf(err)).Observe(time.Since(genStart).Seconds())
	if err != nil {
		var genErr *GenerationError
		if !errors.As(err, &genErr) {
			s.notify(ctx, inv.UserID, err, logger)
		}
		return sum, err
	}
	return sum, nil
}

// notify sends the catch-all error message as a new private message.
func (s *Summarizer) notify(ctx context.Context, userID int64, cause error, logger *zap.Logger) {
	if _, err := s.Messenger.SendMessage(ctx, userID, ErrorPrefix+cause.Error()); err != nil {
		logger.Error("failed to notify user", zap.Error(err), zap.NamedError("cause", cause))
	}
}

func (s *Summarizer) throttle() Throttle {
	if s.NewThrottle != nil {
		return s.NewThrottle()
	}
	return NewIntervalThrottle(2 * time.Second)
}

func (s *Summarizer) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func outcomeOf(err error) string {
	var genErr *GenerationError
	var platErr *PlatformError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &genErr):
		return metrics.OutcomeGenerationError
	case errors.As(err, &platErr):
		return metrics.OutcomePlatformError
	case errors.Is(err, ErrInvalidHours):
		return metrics.OutcomeInvalidRequest
	default:
		return metrics.OutcomeError
	}
}
