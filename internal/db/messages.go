package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Message is one observed chat message.
type Message struct {
	UpdateID  int64
	ChatID    int64
	MessageID int64
	Author    string
	Text      string
	Date      time.Time
	IsCommand bool
}

// InsertMessage records m, ignoring updates already seen. It reports whether
// a row was written.
func InsertMessage(database *sql.DB, m Message) (bool, error) {
	if strings.TrimSpace(m.Author) == "" {
		return false, fmt.Errorf("author cannot be empty")
	}
	result, err := database.Exec(
		`INSERT OR IGNORE INTO messages (update_id, chat_id, message_id, author, text, message_date, is_command)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.UpdateID, m.ChatID, m.MessageID, m.Author, m.Text, m.Date.Unix(), boolToInt(m.IsCommand),
	)
	if err != nil {
		return false, fmt.Errorf("insert message update_id=%d: %w", m.UpdateID, err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// MessagesBetween returns non-command messages of chatID with
// after < date < before, oldest first. Messages sharing a second are
// ordered by platform message id. Dates have second resolution, so a
// message from the same second as a fractional before counts as earlier.
func MessagesBetween(ctx context.Context, database *sql.DB, chatID int64, after, before time.Time) ([]Message, error) {
	beforeSec := before.Unix()
	if before.Nanosecond() > 0 {
		beforeSec++
	}
	rows, err := database.QueryContext(ctx,
		`SELECT update_id, chat_id, message_id, author, text, message_date
		 FROM messages
		 WHERE chat_id = ? AND is_command = 0 AND message_date > ? AND message_date < ?
		 ORDER BY message_date ASC, message_id ASC`,
		chatID, after.Unix(), beforeSec,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages chat_id=%d: %w", chatID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var date int64
		if err := rows.Scan(&m.UpdateID, &m.ChatID, &m.MessageID, &m.Author, &m.Text, &date); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Date = time.Unix(date, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneMessages deletes messages dated before cutoff and returns how many
// rows were removed. The newest row is always kept so the poll offset
// survives.
func PruneMessages(database *sql.DB, cutoff time.Time) (int64, error) {
	result, err := database.Exec(
		`DELETE FROM messages
		 WHERE message_date < ? AND update_id < (SELECT MAX(update_id) FROM messages)`,
		cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return result.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
