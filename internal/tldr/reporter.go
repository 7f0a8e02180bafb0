package tldr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GenerationErrorPrefix starts every message reporting a failed generation.
const GenerationErrorPrefix = "Error generating TLDR: "

// Messenger sends and edits the bot's own messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
}

// Target is the placeholder message a reporter keeps editing.
type Target struct {
	ChatID    int64
	MessageID int64
}

// State is the reporter state.
type State int

const (
	StateInitializing State = iota
	StateStreaming
	StateFinalized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Edit kinds passed to Reporter.OnEdit.
const (
	EditIntermediate = "intermediate"
	EditFinal        = "final"
	EditError        = "error"
)

// Summary accumulates the streamed text of one invocation.
type Summary struct {
	Text     string
	Terminal bool
	Err      error
	State    State
	Edits    int
}

// FormatHeader returns the line shown above the summary text.
func FormatHeader(hours int) string {
	return fmt.Sprintf("TLDR of the last %d hour(s):\n\n", hours)
}

// Reporter renders a stream into the target message. A Reporter serves a
// single invocation.
type Reporter struct {
	Messenger Messenger
	Throttle  Throttle
	Header    string

	// OnEdit, when set, is called after every successful edit.
	OnEdit func(kind string, text string)

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Report consumes stream until it ends. Intermediate edits follow the
// throttle; a final edit with the complete text is always issued on
// success. On a stream failure the target is switched to an error message
// and the *GenerationError is returned. Edit failures abort with a
// *PlatformError.
func (r *Reporter) Report(ctx context.Context, target Target, stream *Stream) (*Summary, error) {
	defer stream.Close()

	sum := &Summary{State: StateInitializing}
	var text strings.Builder
	for stream.Next() {
		sum.State = StateStreaming
		text.WriteString(stream.Delta())
		sum.Text = text.String()

		if !r.Throttle.Ready(sum.Text, r.now()) {
			continue
		}
		if err := r.edit(ctx, target, r.Header+sum.Text, EditIntermediate, sum); err != nil {
			return r.failed(sum, err), err
		}
		if pause := r.Throttle.Pause(); pause > 0 {
			if err := r.sleep(ctx, pause); err != nil {
				return r.failed(sum, err), err
			}
		}
	}

	if err := stream.Err(); err != nil {
		r.failed(sum, err)
		if notifyErr := r.Fail(ctx, target, err); notifyErr != nil {
			return sum, notifyErr
		}
		return sum, err
	}

	if err := r.edit(ctx, target, r.Header+sum.Text, EditFinal, sum); err != nil {
		return r.failed(sum, err), err
	}
	sum.State = StateFinalized
	sum.Terminal = true
	return sum, nil
}

// Fail shows a generation failure on the target. If the edit fails the
// error is sent as a new message instead.
func (r *Reporter) Fail(ctx context.Context, target Target, cause error) error {
	msg := GenerationErrorPrefix + cause.Error()
	editErr := r.Messenger.EditMessage(ctx, target.ChatID, target.MessageID, msg)
	if editErr == nil {
		if r.OnEdit != nil {
			r.OnEdit(EditError, msg)
		}
		return nil
	}
	if _, err := r.Messenger.SendMessage(ctx, target.ChatID, msg); err != nil {
		return &PlatformError{Op: "send", Err: err}
	}
	return nil
}

func (r *Reporter) edit(ctx context.Context, target Target, text, kind string, sum *Summary) error {
	if err := r.Messenger.EditMessage(ctx, target.ChatID, target.MessageID, text); err != nil {
		return &PlatformError{Op: "edit", Err: err}
	}
	sum.Edits++
	if r.OnEdit != nil {
		r.OnEdit(kind, text)
	}
	return nil
}

func (r *Reporter) failed(sum *Summary, err error) *Summary {
	sum.State = StateFailed
	sum.Terminal = true
	sum.Err = err
	return sum
}

func (r *Reporter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reporter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
