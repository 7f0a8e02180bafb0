package tldr

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/stupiduntilnot/tldrbot/internal/model"
)

type sentMessage struct {
	chatID    int64
	messageID int64
	text      string
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int64
	sends   []sentMessage
	edits   []sentMessage
	sendErr []error // consumed one per SendMessage call
	editErr error
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sendErr) > 0 {
		err := m.sendErr[0]
		m.sendErr = m.sendErr[1:]
		if err != nil {
			return 0, err
		}
	}
	m.nextID++
	m.sends = append(m.sends, sentMessage{chatID: chatID, messageID: m.nextID, text: text})
	return m.nextID, nil
}

func (m *fakeMessenger) EditMessage(_ context.Context, chatID, messageID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	m.edits = append(m.edits, sentMessage{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (m *fakeMessenger) editTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.edits))
	for i, e := range m.edits {
		out[i] = e.text
	}
	return out
}

// fakeProvider streams deltas, then err if set. startErr fails the call
// before any delta.
type fakeProvider struct {
	deltas   []string
	err      error
	startErr error
	models   []string

	mu      sync.Mutex
	prompts []string
}

func (p *fakeProvider) GenerateStream(ctx context.Context, _ string, prompt string) iter.Seq2[model.Chunk, error] {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()
	return func(yield func(model.Chunk, error) bool) {
		if p.startErr != nil {
			yield(model.Chunk{}, p.startErr)
			return
		}
		for _, d := range p.deltas {
			if !yield(model.Chunk{Text: d}, nil) {
				return
			}
		}
		if p.err != nil {
			yield(model.Chunk{}, p.err)
		}
	}
}

func (p *fakeProvider) ListModels(context.Context) ([]string, error) {
	return p.models, nil
}

func (p *fakeProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

type fakeSource struct {
	records []Record
	err     error

	gotSince time.Time
	gotUntil time.Time
}

func (s *fakeSource) History(_ context.Context, _ int64, since, until time.Time) ([]Record, error) {
	s.gotSince, s.gotUntil = since, until
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

var errBackend = errors.New("connection refused")

func noSleep(context.Context, time.Duration) error { return nil }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
