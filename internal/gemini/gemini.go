// Package gemini provides the Google GenAI backend for summaries.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/stupiduntilnot/tldrbot/internal/model"
)

// Config holds configuration for the Gemini provider.
type Config struct {
	APIKey         string
	BaseURL        string // empty uses the public endpoint
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Provider implements model.Provider using Google GenAI Gemini.
type Provider struct {
	client *genai.Client
}

var _ model.Provider = (*Provider)(nil)

// NewProvider creates a new Gemini provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Transport: transport},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client}, nil
}

// GenerateStream streams content for prompt.
func (p *Provider) GenerateStream(ctx context.Context, modelID, prompt string) iter.Seq2[model.Chunk, error] {
	return func(yield func(model.Chunk, error) bool) {
		for resp, err := range p.client.Models.GenerateContentStream(ctx, modelID, genai.Text(prompt), nil) {
			if err != nil {
				yield(model.Chunk{}, fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			text := resp.Text()
			done := finished(resp)
			if text == "" && !done {
				continue
			}
			if !yield(model.Chunk{Text: text, Done: done}, nil) {
				return
			}
		}
	}
}

func finished(resp *genai.GenerateContentResponse) bool {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return false
	}
	return resp.Candidates[0].FinishReason != ""
}

// ListModels lists model names, without the "models/" prefix.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("gemini list models failed: %w", err)
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}
