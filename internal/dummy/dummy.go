package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/stupiduntilnot/tldrbot/internal/commander"
	"github.com/stupiduntilnot/tldrbot/internal/model"
)

// Chat and user ids used by scripted updates.
const (
	ChatID = -1001
	UserID = 1
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		matched := false
		for _, kind := range []string{"err", "sleep", "msg", "msgb64", "chunks", "midfail"} {
			if strings.HasPrefix(token, kind+":") {
				actions = append(actions, action{kind: kind, arg: strings.TrimPrefix(token, kind+":")})
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Sent is a message the dummy commander was asked to send or edit.
type Sent struct {
	ChatID    int64
	MessageID int64
	Text      string
	Edit      bool
}

// Commander is a scripted commander. Poll actions produce updates; send
// actions decide the outcome of every send and edit.
type Commander struct {
	mu            sync.Mutex
	poll          *scriptRunner
	send          *scriptRunner
	updateID      int64
	nextMessageID int64
	sent          []Sent
}

func NewCommander(pollScript, sendScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Commander{poll: poll, send: send, updateID: 1, nextMessageID: 1000}, nil
}

func (c *Commander) GetUpdates(_ context.Context, offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.poll.next()
	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		sleepMillis(a.arg)
		return nil, nil
	case "msg":
		return []cmdpkg.Update{c.update(a.arg)}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return nil, fmt.Errorf("dummy commander msgb64 decode failed: %w", err)
		}
		return []cmdpkg.Update{c.update(string(raw))}, nil
	default:
		return nil, nil
	}
}

func (c *Commander) update(text string) cmdpkg.Update {
	c.updateID++
	c.nextMessageID++
	msg := text
	return cmdpkg.Update{
		UpdateID: c.updateID,
		Message: &cmdpkg.Message{
			MessageID: c.nextMessageID,
			Chat:      cmdpkg.Chat{ID: ChatID, Type: "group"},
			From:      &cmdpkg.User{ID: UserID, Username: "dummy"},
			Text:      &msg,
			Date:      time.Now().Unix(),
		},
	}
}

func (c *Commander) SendMessage(_ context.Context, chatID int64, text string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendOutcome(); err != nil {
		return 0, err
	}
	c.nextMessageID++
	c.sent = append(c.sent, Sent{ChatID: chatID, MessageID: c.nextMessageID, Text: text})
	return c.nextMessageID, nil
}

func (c *Commander) EditMessage(_ context.Context, chatID, messageID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendOutcome(); err != nil {
		return err
	}
	c.sent = append(c.sent, Sent{ChatID: chatID, MessageID: messageID, Text: text, Edit: true})
	return nil
}

func (c *Commander) sendOutcome() error {
	a := c.send.next()
	switch a.kind {
	case "err":
		return fmt.Errorf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		sleepMillis(a.arg)
	}
	return nil
}

// Sent returns every send and edit in call order.
func (c *Commander) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

// Provider is a scripted model provider. Each GenerateStream call consumes
// one action:
//
//	ok             stream "dummy-ok"
//	msg:<text>     stream text as one delta
//	chunks:a|b|c   stream a, b, c
//	midfail:a|b    stream a, b, then fail
//	err:<class>    fail before the first delta
//	sleep:<ms>     wait, then stream "dummy-after-sleep"
type Provider struct {
	mu     sync.Mutex
	model  string
	script *scriptRunner
}

var _ model.Provider = (*Provider)(nil)

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

func (p *Provider) GenerateStream(ctx context.Context, _ string, _ string) iter.Seq2[model.Chunk, error] {
	p.mu.Lock()
	a := p.script.next()
	p.mu.Unlock()

	return func(yield func(model.Chunk, error) bool) {
		var deltas []string
		var failure error
		switch a.kind {
		case "err":
			yield(model.Chunk{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api")))
			return
		case "sleep":
			sleepMillis(a.arg)
			deltas = []string{"dummy-after-sleep"}
		case "msg":
			deltas = []string{a.arg}
		case "msgb64":
			raw, err := base64.StdEncoding.DecodeString(a.arg)
			if err != nil {
				yield(model.Chunk{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err))
				return
			}
			deltas = []string{string(raw)}
		case "chunks":
			deltas = strings.Split(a.arg, "|")
		case "midfail":
			deltas = strings.Split(a.arg, "|")
			failure = fmt.Errorf("dummy provider stream broke")
		default:
			deltas = []string{"dummy-ok"}
		}
		for i, d := range deltas {
			if ctx.Err() != nil {
				return
			}
			last := i == len(deltas)-1 && failure == nil
			if !yield(model.Chunk{Text: d, Done: last}, nil) {
				return
			}
		}
		if failure != nil {
			yield(model.Chunk{}, failure)
		}
	}
}

// ListModels returns the configured model.
func (p *Provider) ListModels(context.Context) ([]string, error) {
	return []string{p.model}, nil
}

func sleepMillis(arg string) {
	ms, _ := strconv.Atoi(arg)
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
