package tldr

import (
	"context"
	"database/sql"
	"time"

	"github.com/stupiduntilnot/tldrbot/internal/db"
)

// Utterance is one captured chat message.
type Utterance struct {
	ID        int64
	Author    string
	Text      string
	Timestamp time.Time
}

// String renders the utterance as it appears in the prompt.
func (u Utterance) String() string {
	return u.Author + ": " + u.Text
}

// Window is the chronologically ordered set of utterances in [Since, Until).
type Window struct {
	Since      time.Time
	Until      time.Time
	Utterances []Utterance
}

// Lines returns the formatted utterances in window order.
func (w Window) Lines() []string {
	lines := make([]string, len(w.Utterances))
	for i, u := range w.Utterances {
		lines[i] = u.String()
	}
	return lines
}

// Record is a raw message as returned by a HistorySource.
type Record struct {
	ID        int64
	Author    string
	Content   string
	Timestamp time.Time
}

// HistorySource returns the messages of a chat dated strictly after since
// and strictly before until, oldest first.
type HistorySource interface {
	History(ctx context.Context, chatID int64, since, until time.Time) ([]Record, error)
}

// SQLiteHistory reads chat history from the bot's message log.
type SQLiteHistory struct {
	DB *sql.DB
}

// History implements HistorySource.
func (h *SQLiteHistory) History(ctx context.Context, chatID int64, since, until time.Time) ([]Record, error) {
	rows, err := db.MessagesBetween(ctx, h.DB, chatID, since, until)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, m := range rows {
		records = append(records, Record{ID: m.MessageID, Author: m.Author, Content: m.Text, Timestamp: m.Date})
	}
	return records, nil
}

// Collector builds conversation windows from a HistorySource.
type Collector struct {
	Source HistorySource
	Now    func() time.Time
}

// Collect returns the window covering the last hours hours of chatID.
func (c *Collector) Collect(ctx context.Context, chatID int64, hours int) (Window, error) {
	if hours < 1 {
		return Window{}, ErrInvalidHours
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	until := now()
	since := until.Add(-time.Duration(hours) * time.Hour)

	records, err := c.Source.History(ctx, chatID, since, until)
	if err != nil {
		return Window{}, &PlatformError{Op: "history", Err: err}
	}

	w := Window{Since: since, Until: until, Utterances: make([]Utterance, 0, len(records))}
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if r.Timestamp.Before(since) || !r.Timestamp.Before(until) {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		w.Utterances = append(w.Utterances, Utterance{ID: r.ID, Author: r.Author, Text: r.Content, Timestamp: r.Timestamp})
	}
	return w, nil
}
