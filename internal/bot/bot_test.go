package bot

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/tldrbot/internal/db"
	"github.com/stupiduntilnot/tldrbot/internal/dummy"
	"github.com/stupiduntilnot/tldrbot/internal/tldr"
)

type fixture struct {
	bot       *Bot
	commander *dummy.Commander
	database  *sql.DB
}

func newFixture(t *testing.T, cfg Config, pollScript, providerScript string) *fixture {
	t.Helper()
	database, err := db.OpenDB(t.TempDir() + "/bot.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.InitSchema(database))

	commander, err := dummy.NewCommander(pollScript, "ok")
	require.NoError(t, err)
	provider, err := dummy.NewProvider("llama3.1", providerScript)
	require.NoError(t, err)

	summarizer := &tldr.Summarizer{
		Messenger: commander,
		Collector: &tldr.Collector{Source: &tldr.SQLiteHistory{DB: database}},
		Streamer:  &tldr.Streamer{Provider: provider},
		Model:     "llama3.1",
		NewThrottle: func() tldr.Throttle {
			return tldr.ModuloThrottle{Every: 10}
		},
		Events: &db.EventLog{DB: database},
	}
	b, err := New(cfg, Deps{
		Commander:  commander,
		Provider:   provider,
		Summarizer: summarizer,
		DB:         database,
	})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return &fixture{bot: b, commander: commander, database: database}
}

func (f *fixture) poll(t *testing.T, times int) {
	t.Helper()
	for range times {
		_, err := f.bot.PollOnce(context.Background())
		require.NoError(t, err)
	}
	f.bot.Wait()
}

func (f *fixture) texts() []string {
	var out []string
	for _, s := range f.commander.Sent() {
		out = append(out, s.Text)
	}
	return out
}

func (f *fixture) countEvents(t *testing.T, eventType string) int {
	t.Helper()
	var n int
	require.NoError(t, f.database.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = ?`, eventType).Scan(&n))
	return n
}

func TestPollOnce_RecordsHistoryAndSummarizes(t *testing.T) {
	f := newFixture(t, Config{MaxHours: 168, MaxConcurrent: 2},
		"msg:hi there,msg:/tldr 1 focus", "chunks:Lo|rem ip|sum.")
	f.poll(t, 2)

	sent := f.commander.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, int64(dummy.UserID), sent[0].ChatID)
	assert.Equal(t, tldr.PlaceholderText, sent[0].Text)
	assert.True(t, sent[1].Edit)
	assert.Equal(t, sent[0].MessageID, sent[1].MessageID)
	assert.Equal(t, "TLDR of the last 1 hour(s):\n\nLorem ipsum.", sent[1].Text)

	var total, commands int
	require.NoError(t, f.database.QueryRow(`SELECT COUNT(*), SUM(is_command) FROM messages`).Scan(&total, &commands))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, commands)
	assert.Equal(t, int64(4), f.bot.Offset())
	assert.Equal(t, 1, f.countEvents(t, db.EventSummaryCompleted))
}

func TestPollOnce_InvalidHoursRepliesUsage(t *testing.T) {
	f := newFixture(t, Config{MaxHours: 24}, "msg:/tldr 25", "ok")
	f.poll(t, 1)

	assert.Equal(t, []string{Usage(24)}, f.texts())
	assert.Zero(t, f.countEvents(t, db.EventSummaryStarted))
}

func TestPollOnce_ListsModels(t *testing.T) {
	f := newFixture(t, Config{}, "msg:/models", "ok")
	f.poll(t, 1)

	assert.Equal(t, []string{"Available models:\nllama3.1"}, f.texts())
	assert.Equal(t, 1, f.countEvents(t, db.EventModelsListed))
}

func TestPollOnce_IgnoresCommandsForOtherBots(t *testing.T) {
	f := newFixture(t, Config{Username: "tldr_bot"}, "msg:/tldr@other_bot,msg:/models@tldr_bot", "ok")
	f.poll(t, 2)

	assert.Equal(t, []string{"Available models:\nllama3.1"}, f.texts())
}

func TestPollOnce_SkipsEmptyUpdates(t *testing.T) {
	f := newFixture(t, Config{}, "ok", "ok")
	n, err := f.bot.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.texts())
}

func TestPollOnce_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	f := newFixture(t, Config{BreakerThreshold: 2, BreakerCooldown: time.Hour}, "err:command_source_api", "ok")
	ctx := context.Background()

	for range 2 {
		_, err := f.bot.PollOnce(ctx)
		require.Error(t, err)
	}
	_, err := f.bot.PollOnce(ctx)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	assert.Equal(t, 2, f.countEvents(t, db.EventPollFailed))
	assert.Equal(t, 1, f.countEvents(t, db.EventCircuitOpened))
}

func TestDispatch_BusyWhenPoolSaturated(t *testing.T) {
	f := newFixture(t, Config{MaxConcurrent: 1}, "msg:/tldr,msg:/tldr", "sleep:300")
	f.poll(t, 2)

	assert.Contains(t, f.texts(), BusyText)
	assert.Equal(t, 1, f.countEvents(t, db.EventInvocationDenied))
	assert.Equal(t, 1, f.countEvents(t, db.EventSummaryStarted))
}

func TestNew_ResumesOffsetFromMessageLog(t *testing.T) {
	database, err := db.OpenDB(t.TempDir() + "/bot.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.InitSchema(database))
	_, err = db.InsertMessage(database, db.Message{UpdateID: 41, ChatID: 1, MessageID: 1, Author: "a", Text: "x", Date: time.Now()})
	require.NoError(t, err)

	commander, err := dummy.NewCommander("", "")
	require.NoError(t, err)
	b, err := New(Config{}, Deps{Commander: commander, DB: database})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, int64(42), b.Offset())
}

func TestMaybePrune_DropsExpiredMessages(t *testing.T) {
	f := newFixture(t, Config{Retention: time.Hour, PruneEvery: time.Minute}, "", "ok")
	now := time.Unix(1700000000, 0)
	f.bot.now = func() time.Time { return now }

	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Minute} {
		_, err := db.InsertMessage(f.database, db.Message{
			UpdateID:  int64(i + 1),
			ChatID:    1,
			MessageID: int64(i + 1),
			Author:    "a",
			Text:      "x",
			Date:      now.Add(-age),
		})
		require.NoError(t, err)
	}

	f.bot.maybePrune()
	var left int
	require.NoError(t, f.database.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&left))
	assert.Equal(t, 1, left)
	assert.Equal(t, 1, f.countEvents(t, db.EventMessagesPruned))

	// A second pass inside PruneEvery is skipped.
	f.bot.maybePrune()
	assert.Equal(t, 1, f.countEvents(t, db.EventMessagesPruned))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Config{Sleep: 10 * time.Millisecond}, "msg:hello,ok", "ok")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, f.bot.Run(ctx))
	assert.GreaterOrEqual(t, f.bot.Offset(), int64(3))
}
