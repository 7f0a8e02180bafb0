package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Process event types.
const (
	EventProcessStarted   = "process.started"
	EventPollFailed       = "poll.failed"
	EventCircuitOpened    = "circuit.opened"
	EventCircuitHalfOpen  = "circuit.half_open"
	EventCircuitClosed    = "circuit.closed"
	EventMessagesPruned   = "messages.pruned"
	EventInvocationDenied = "invocation.denied"
)

// Summarization event types.
const (
	EventSummaryStarted    = "summary.started"
	EventHistoryCollected  = "history.collected"
	EventPromptBuilt       = "prompt.built"
	EventGenerationStarted = "generation.started"
	EventSummaryEdited     = "summary.edited"
	EventSummaryCompleted  = "summary.completed"
	EventSummaryFailed     = "summary.failed"
	EventModelsListed      = "models.listed"
)

// OpenDB opens (or creates) a SQLite database at the given path, ensuring
// that the parent directory exists.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	return db, nil
}

// InitSchema creates all tables: events, messages.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER NOT NULL DEFAULT (unixepoch()),
			parent_id INTEGER,
			event_type TEXT NOT NULL,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			update_id INTEGER NOT NULL UNIQUE,
			chat_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			author TEXT NOT NULL,
			text TEXT NOT NULL,
			message_date INTEGER NOT NULL,
			is_command INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT (unixepoch()),
			UNIQUE(chat_id, message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_date ON messages(chat_id, message_date);
	`)
	return err
}

// DeriveOffset returns the next Telegram polling offset derived from the
// messages table. Returns 0 if no update has been recorded yet.
func DeriveOffset(database *sql.DB) (int64, error) {
	var offset int64
	err := database.QueryRow(`SELECT COALESCE(MAX(update_id) + 1, 0) FROM messages`).Scan(&offset)
	return offset, err
}

// LogEvent inserts an event into the events table and returns its auto-generated id.
// parentID may be nil for root events. payload is serialized to JSON; nil payload stores NULL.
func LogEvent(db *sql.DB, parentID *int64, eventType string, payload map[string]any) (int64, error) {
	var payloadJSON any
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	res, err := db.Exec(
		`INSERT INTO events (parent_id, event_type, payload) VALUES (?, ?, ?)`,
		parentID, eventType, payloadJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event %s: %w", eventType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get event id: %w", err)
	}
	return id, nil
}

// EventLog binds LogEvent to one database so components can record events
// without holding the handle themselves.
type EventLog struct {
	DB *sql.DB
}

// Log records an event. A nil receiver or database discards the event.
func (l *EventLog) Log(parentID *int64, eventType string, payload map[string]any) (int64, error) {
	if l == nil || l.DB == nil {
		return 0, nil
	}
	return LogEvent(l.DB, parentID, eventType, payload)
}
