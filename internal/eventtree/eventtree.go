// Package eventtree reads the hierarchical event log back: single summary
// runs as trees and recent runs as a table.
package eventtree

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/stupiduntilnot/tldrbot/internal/db"
	"github.com/stupiduntilnot/tldrbot/internal/metrics"
)

const timeLayout = "2006-01-02 15:04:05"

// Payload strings longer than this are cut when rendered.
const maxValueRunes = 80

// Event is one row of the events table with its decoded payload.
type Event struct {
	ID       int64
	Time     time.Time
	ParentID *int64
	Type     string
	Payload  map[string]any
	Children []*Event
}

// Options control rendering.
type Options struct {
	MaxDepth  int // 0 = unlimited
	NoPayload bool
}

// ErrNotFound is returned when no matching root event exists.
var ErrNotFound = errors.New("event not found")

// LatestRoot returns the id of the most recent root event of eventType.
func LatestRoot(ctx context.Context, database *sql.DB, eventType string) (int64, error) {
	var id int64
	err := database.QueryRowContext(ctx,
		`SELECT id FROM events WHERE event_type = ? AND parent_id IS NULL
		 ORDER BY id DESC LIMIT 1`,
		eventType,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no %s event: %w", eventType, ErrNotFound)
	}
	return id, err
}

// Load returns the tree rooted at rootID. Children are ordered by id.
func Load(ctx context.Context, database *sql.DB, rootID int64) (*Event, error) {
	rows, err := database.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("query subtree of %d: %w", rootID, err)
	}
	defer rows.Close()

	byID := make(map[int64]*Event)
	for rows.Next() {
		var (
			ev      Event
			ts      int64
			parent  sql.NullInt64
			payload sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ts, &parent, &ev.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Time = time.Unix(ts, 0).UTC()
		ev.Payload = decodePayload(payload)
		if parent.Valid {
			ev.ParentID = &parent.Int64
			// Rows arrive in id order, so a parent is always seen first.
			if p, ok := byID[parent.Int64]; ok && ev.ID != rootID {
				p.Children = append(p.Children, &ev)
			}
		}
		byID[ev.ID] = &ev
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	root, ok := byID[rootID]
	if !ok {
		return nil, fmt.Errorf("event %d: %w", rootID, ErrNotFound)
	}
	return root, nil
}

func decodePayload(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil
	}
	return m
}

// Run is the outcome of one summary invocation, read from its root event
// and terminal child.
type Run struct {
	ID        int64
	StartedAt time.Time
	ChatID    int64
	UserID    int64
	Hours     int
	Model     string
	Outcome   string // "running" until a terminal event is logged
	Edits     int
	Elapsed   time.Duration
}

// OutcomeRunning marks a run without a terminal event.
const OutcomeRunning = "running"

// Runs returns the latest limit summary runs, newest first.
func Runs(ctx context.Context, database *sql.DB, limit int) ([]Run, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT r.id, r.timestamp, r.payload, t.event_type, t.payload
		FROM events r
		LEFT JOIN events t
			ON t.parent_id = r.id AND t.event_type IN (?, ?)
		WHERE r.parent_id IS NULL AND r.event_type = ?
		ORDER BY r.id DESC
		LIMIT ?
	`, db.EventSummaryCompleted, db.EventSummaryFailed, db.EventSummaryStarted, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run          Run
			ts           int64
			started      sql.NullString
			terminalType sql.NullString
			terminal     sql.NullString
		)
		if err := rows.Scan(&run.ID, &ts, &started, &terminalType, &terminal); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.Unix(ts, 0).UTC()
		sp := decodePayload(started)
		run.ChatID = intField(sp, "chat_id")
		run.UserID = intField(sp, "user_id")
		run.Hours = int(intField(sp, "hours"))
		run.Model, _ = sp["model"].(string)

		tp := decodePayload(terminal)
		run.Elapsed = time.Duration(intField(tp, "elapsed_ms")) * time.Millisecond
		switch terminalType.String {
		case db.EventSummaryCompleted:
			run.Outcome = metrics.OutcomeSuccess
			run.Edits = int(intField(tp, "edits"))
		case db.EventSummaryFailed:
			run.Outcome, _ = tp["outcome"].(string)
			if run.Outcome == "" {
				run.Outcome = metrics.OutcomeError
			}
		default:
			run.Outcome = OutcomeRunning
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func intField(m map[string]any, key string) int64 {
	f, _ := m[key].(float64)
	return int64(f)
}

// WriteRuns renders runs as an aligned table.
func WriteRuns(w io.Writer, runs []Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tCHAT\tHOURS\tMODEL\tOUTCOME\tEDITS\tELAPSED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.Format(timeLayout), r.ChatID, r.Hours, r.Model, r.Outcome, r.Edits, r.Elapsed)
	}
	return tw.Flush()
}

// WriteTree renders the tree using box-drawing characters.
func WriteTree(w io.Writer, root *Event, opts Options) {
	fmt.Fprintln(w, FormatEvent(root, opts.NoPayload))
	writeChildren(w, root, "", 1, opts)
}

func writeChildren(w io.Writer, ev *Event, prefix string, depth int, opts Options) {
	if len(ev.Children) == 0 {
		return
	}
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		fmt.Fprintln(w, prefix+"└── [...]")
		return
	}
	for i, child := range ev.Children {
		branch, indent := "├── ", "│   "
		if i == len(ev.Children)-1 {
			branch, indent = "└── ", "    "
		}
		fmt.Fprintln(w, prefix+branch+FormatEvent(child, opts.NoPayload))
		writeChildren(w, child, prefix+indent, depth+1, opts)
	}
}

// FormatEvent formats a single event line: [id] time  type  key=value ...
// Payload keys are sorted.
func FormatEvent(ev *Event, noPayload bool) string {
	line := fmt.Sprintf("[%d] %s  %s", ev.ID, ev.Time.Format(timeLayout), ev.Type)
	if noPayload {
		return line
	}
	for _, k := range slices.Sorted(maps.Keys(ev.Payload)) {
		line += "  " + k + "=" + formatValue(ev.Payload[k])
	}
	return line
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if r := []rune(val); len(r) > maxValueRunes {
			return strconv.Quote(string(r[:maxValueRunes]) + "...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

type jsonEvent struct {
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Children  []jsonEvent    `json:"children,omitempty"`
}

func toJSONEvent(ev *Event, depth int, opts Options) jsonEvent {
	je := jsonEvent{ID: ev.ID, Timestamp: ev.Time.Unix(), EventType: ev.Type}
	if !opts.NoPayload {
		je.Payload = ev.Payload
	}
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		return je
	}
	for _, child := range ev.Children {
		je.Children = append(je.Children, toJSONEvent(child, depth+1, opts))
	}
	return je
}

// WriteJSON renders the tree as indented JSON.
func WriteJSON(w io.Writer, root *Event, opts Options) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toJSONEvent(root, 1, opts))
}
