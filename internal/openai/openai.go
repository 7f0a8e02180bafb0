package openai

import (
	"context"
	"fmt"
	"iter"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/stupiduntilnot/tldrbot/internal/model"
)

// Config configures a Client. BaseURL may point at any OpenAI-compatible
// endpoint; Ollama serves one under /v1/.
type Config struct {
	BaseURL        string
	APIKey         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client streams chat completions from an OpenAI-compatible backend.
type Client struct {
	client openai.Client
}

var _ model.Provider = (*Client)(nil)

// NewClient creates a client. Requests are never retried.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithHTTPClient(newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: openai.NewClient(opts...)}
}

// newHTTPClient bounds dialing by connect and waiting for response headers
// by read. There is no whole-request timeout: a stream may legitimately run
// longer than either bound.
func newHTTPClient(connect, read time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{Transport: transport}
}

// GenerateStream issues a streaming chat completion with prompt as the only
// user message.
func (c *Client) GenerateStream(ctx context.Context, modelID, prompt string) iter.Seq2[model.Chunk, error] {
	return func(yield func(model.Chunk, error) bool) {
		params := openai.ChatCompletionNewParams{
			Model:    shared.ChatModel(modelID),
			Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		}
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			done := choice.FinishReason != ""
			if choice.Delta.Content == "" && !done {
				continue
			}
			if !yield(model.Chunk{Text: choice.Delta.Content, Done: done}, nil) {
				return
			}
			if done {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(model.Chunk{}, fmt.Errorf("openai stream failed: %w", err))
		}
	}
}

// ListModels returns the ids of all models the backend serves.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	pager := c.client.Models.ListAutoPaging(ctx)
	var ids []string
	for pager.Next() {
		ids = append(ids, pager.Current().ID)
	}
	if err := pager.Err(); err != nil {
		return nil, fmt.Errorf("openai list models failed: %w", err)
	}
	return ids, nil
}
