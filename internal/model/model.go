package model

import (
	"context"
	"iter"
)

// Chunk is one streamed fragment of generated text. Done marks the last
// chunk of a generation; backends that end the stream implicitly never set it.
type Chunk struct {
	Text string
	Done bool
}

// Provider is the LLM backend abstraction used by the summarizer.
//
// GenerateStream is lazy: the backend call starts when the sequence is first
// iterated. An error yielded before any chunk means the call never started.
type Provider interface {
	GenerateStream(ctx context.Context, model, prompt string) iter.Seq2[Chunk, error]
	ListModels(ctx context.Context) ([]string, error)
}
