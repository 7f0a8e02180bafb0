package bot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	cmdpkg "github.com/stupiduntilnot/tldrbot/internal/commander"
	"github.com/stupiduntilnot/tldrbot/internal/db"
	"github.com/stupiduntilnot/tldrbot/internal/metrics"
	"github.com/stupiduntilnot/tldrbot/internal/model"
	"github.com/stupiduntilnot/tldrbot/internal/tldr"
)

// Replies sent outside the summarization pipeline.
const (
	BusyText          = "The bot is busy summarizing other chats. Please try again in a minute."
	ModelsPrefix      = "Available models:\n"
	ModelsErrorPrefix = "Error listing models: "
)

// Config tunes the bot runtime.
type Config struct {
	Username      string
	PollTimeout   int
	Sleep         time.Duration
	MaxHours      int
	MaxConcurrent int

	// Retention bounds the message log; PruneEvery is how often it is
	// enforced. A zero Retention disables pruning.
	Retention  time.Duration
	PruneEvery time.Duration

	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Commander  cmdpkg.Commander
	Provider   model.Provider
	Summarizer *tldr.Summarizer
	DB         *sql.DB
	Logger     *zap.Logger
}

// Bot polls the chat platform, records every text message, and dispatches
// commands onto a bounded worker pool.
type Bot struct {
	cfg        Config
	commander  cmdpkg.Commander
	provider   model.Provider
	summarizer *tldr.Summarizer
	db         *sql.DB
	events     *db.EventLog
	logger     *zap.Logger

	pool    *ants.Pool
	breaker *gobreaker.CircuitBreaker
	wg      sync.WaitGroup

	processEventID *int64
	offset         int64
	lastPrune      time.Time
	now            func() time.Time
}

// New builds a bot and logs process.started. The poll offset resumes after
// the last recorded update.
func New(cfg Config, deps Deps) (*Bot, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxHours <= 0 {
		cfg.MaxHours = 168
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bot{
		cfg:        cfg,
		commander:  deps.Commander,
		provider:   deps.Provider,
		summarizer: deps.Summarizer,
		db:         deps.DB,
		events:     &db.EventLog{DB: deps.DB},
		logger:     logger,
		now:        time.Now,
	}

	pool, err := ants.NewPool(cfg.MaxConcurrent,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			logger.Error("invocation panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation pool: %w", err)
	}
	b.pool = pool

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "getUpdates",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: b.onBreakerChange,
	})

	offset, err := db.DeriveOffset(deps.DB)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to derive offset: %w", err)
	}
	b.offset = offset

	id, err := b.events.Log(nil, db.EventProcessStarted, map[string]any{
		"role":           "bot",
		"offset":         offset,
		"max_concurrent": cfg.MaxConcurrent,
	})
	if err != nil {
		logger.Warn("failed to log process.started", zap.Error(err))
	} else {
		b.processEventID = &id
	}
	return b, nil
}

// Run polls until ctx is canceled, then waits for in-flight invocations.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot running",
		zap.Int64("offset", b.offset),
		zap.Int("max_concurrent", b.cfg.MaxConcurrent),
	)
	defer b.Close()

	for ctx.Err() == nil {
		b.maybePrune()
		n, err := b.PollOnce(ctx)
		if err != nil || (n == 0 && b.cfg.PollTimeout == 0) {
			b.sleep(ctx)
		}
	}
	return nil
}

// PollOnce fetches one batch of updates through the circuit breaker and
// handles it, returning the batch size. While the breaker is open it
// returns gobreaker.ErrOpenState without calling the platform.
func (b *Bot) PollOnce(ctx context.Context) (int, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.commander.GetUpdates(ctx, b.offset, b.cfg.PollTimeout)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, err
		}
		metrics.UpdatesTotal.WithLabelValues("poll_error").Inc()
		b.logger.Warn("getUpdates failed", zap.Int64("offset", b.offset), zap.Error(err))
		b.events.Log(b.processEventID, db.EventPollFailed, map[string]any{
			"offset": b.offset,
			"error":  err.Error(),
		})
		return 0, err
	}

	updates, _ := res.([]cmdpkg.Update)
	for _, u := range updates {
		if u.UpdateID >= b.offset {
			b.offset = u.UpdateID + 1
		}
		b.handleUpdate(ctx, u)
	}
	return len(updates), nil
}

func (b *Bot) handleUpdate(ctx context.Context, u cmdpkg.Update) {
	msg := u.Message
	if msg == nil || msg.Text == nil || strings.TrimSpace(*msg.Text) == "" {
		metrics.UpdatesTotal.WithLabelValues("skipped").Inc()
		return
	}
	text := *msg.Text
	cmd, isCommand := ParseCommand(text)

	_, err := db.InsertMessage(b.db, db.Message{
		UpdateID:  u.UpdateID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Author:    msg.From.Name(),
		Text:      text,
		Date:      time.Unix(msg.Date, 0),
		IsCommand: isCommand,
	})
	if err != nil {
		b.logger.Error("failed to record message",
			zap.Int64("update_id", u.UpdateID),
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err),
		)
	}

	if !isCommand {
		metrics.UpdatesTotal.WithLabelValues("message").Inc()
		return
	}
	metrics.UpdatesTotal.WithLabelValues("command").Inc()
	if !cmd.AddressedTo(b.cfg.Username) {
		return
	}
	if msg.From == nil {
		b.logger.Warn("command without sender", zap.Int64("chat_id", msg.Chat.ID))
		return
	}

	switch cmd.Name {
	case CommandTLDR:
		b.dispatchTLDR(ctx, msg, cmd)
	case CommandModels:
		b.dispatch(ctx, msg.From.ID, CommandModels, func() { b.listModels(ctx, msg.From.ID) })
	}
}

func (b *Bot) dispatchTLDR(ctx context.Context, msg *cmdpkg.Message, cmd Command) {
	userID := msg.From.ID
	if err := ValidateHours(cmd.Hours, b.cfg.MaxHours); err != nil {
		metrics.SummariesTotal.WithLabelValues(metrics.OutcomeInvalidRequest).Inc()
		b.logger.Info("rejected tldr request", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, userID, Usage(b.cfg.MaxHours))
		return
	}
	inv := tldr.Invocation{
		ChatID:  msg.Chat.ID,
		UserID:  userID,
		Hours:   cmd.Hours,
		Context: cmd.Context,
	}
	b.dispatch(ctx, userID, CommandTLDR, func() {
		// Summarize reports every error to the user itself.
		_, _ = b.summarizer.Summarize(ctx, inv)
	})
}

// dispatch runs task on the pool. A saturated pool denies the request with
// a busy reply.
func (b *Bot) dispatch(ctx context.Context, userID int64, command string, task func()) {
	b.wg.Add(1)
	err := b.pool.Submit(func() {
		defer b.wg.Done()
		task()
	})
	if err == nil {
		return
	}
	b.wg.Done()

	b.logger.Warn("invocation denied",
		zap.String("command", command),
		zap.Int64("user_id", userID),
		zap.Int("running", b.pool.Running()),
		zap.Error(err),
	)
	b.events.Log(b.processEventID, db.EventInvocationDenied, map[string]any{
		"command": command,
		"user_id": userID,
		"error":   err.Error(),
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		b.reply(ctx, userID, BusyText)
	}
}

func (b *Bot) listModels(ctx context.Context, userID int64) {
	ids, err := b.provider.ListModels(ctx)
	text := ModelsPrefix + strings.Join(ids, ", ")
	payload := map[string]any{"user_id": userID, "count": len(ids)}
	if err != nil {
		text = ModelsErrorPrefix + err.Error()
		payload["error"] = err.Error()
		b.logger.Error("failed to list models", zap.Int64("user_id", userID), zap.Error(err))
	}
	b.events.Log(b.processEventID, db.EventModelsListed, payload)
	b.reply(ctx, userID, text)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.commander.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Error("failed to send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) maybePrune() {
	if b.cfg.Retention <= 0 {
		return
	}
	now := b.now()
	if !b.lastPrune.IsZero() && now.Sub(b.lastPrune) < b.cfg.PruneEvery {
		return
	}
	b.lastPrune = now
	n, err := db.PruneMessages(b.db, now.Add(-b.cfg.Retention))
	if err != nil {
		b.logger.Error("failed to prune messages", zap.Error(err))
		return
	}
	if n > 0 {
		b.logger.Info("pruned messages", zap.Int64("rows", n))
		b.events.Log(b.processEventID, db.EventMessagesPruned, map[string]any{
			"rows":            n,
			"retention_hours": int(b.cfg.Retention.Hours()),
		})
	}
}

func (b *Bot) onBreakerChange(name string, from, to gobreaker.State) {
	b.logger.Warn("circuit breaker state changed",
		zap.String("breaker", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	var eventType string
	switch to {
	case gobreaker.StateOpen:
		eventType = db.EventCircuitOpened
	case gobreaker.StateHalfOpen:
		eventType = db.EventCircuitHalfOpen
	case gobreaker.StateClosed:
		eventType = db.EventCircuitClosed
	default:
		return
	}
	b.events.Log(b.processEventID, eventType, map[string]any{
		"breaker":          name,
		"from":             from.String(),
		"threshold":        b.cfg.BreakerThreshold,
		"cooldown_seconds": int(b.cfg.BreakerCooldown.Seconds()),
	})
}

func (b *Bot) sleep(ctx context.Context) {
	if b.cfg.Sleep <= 0 {
		return
	}
	timer := time.NewTimer(b.cfg.Sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Offset returns the next update id to poll for.
func (b *Bot) Offset() int64 {
	return b.offset
}

// Wait blocks until every dispatched invocation has finished.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Close waits for in-flight invocations and releases the pool.
func (b *Bot) Close() {
	b.wg.Wait()
	b.pool.Release()
}
