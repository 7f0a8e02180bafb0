package tldr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Stream) []string {
	var out []string
	for s.Next() {
		out = append(out, s.Delta())
	}
	return out
}

func TestStreamer_DeliversDeltasInOrder(t *testing.T) {
	s := &Streamer{Provider: &fakeProvider{deltas: []string{"Lo", "rem ip", "sum."}}}

	stream, err := s.Open(context.Background(), "m", "p")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"Lo", "rem ip", "sum."}, drain(stream))
	assert.NoError(t, stream.Err())
	assert.False(t, stream.Next())
}

func TestStreamer_StartFailure(t *testing.T) {
	s := &Streamer{Provider: &fakeProvider{startErr: errBackend}}

	stream, err := s.Open(context.Background(), "m", "p")
	assert.Nil(t, stream)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageStart, genErr.Stage)
	assert.ErrorIs(t, err, errBackend)
}

func TestStreamer_MidStreamFailure(t *testing.T) {
	s := &Streamer{Provider: &fakeProvider{deltas: []string{"a", "b"}, err: errBackend}}

	stream, err := s.Open(context.Background(), "m", "p")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, drain(stream))
	var genErr *GenerationError
	require.ErrorAs(t, stream.Err(), &genErr)
	assert.Equal(t, StageStream, genErr.Stage)
}

func TestStreamer_EmptyGeneration(t *testing.T) {
	s := &Streamer{Provider: &fakeProvider{}}

	stream, err := s.Open(context.Background(), "m", "p")
	require.NoError(t, err)
	assert.Empty(t, drain(stream))
	assert.NoError(t, stream.Err())
}

func TestStreamer_SkipsEmptyDeltas(t *testing.T) {
	s := &Streamer{Provider: &fakeProvider{deltas: []string{"", "a", "", "b"}}}

	stream, err := s.Open(context.Background(), "m", "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, drain(stream))
}

func TestStreamer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Streamer{Provider: &fakeProvider{startErr: context.Canceled}}

	_, err := s.Open(ctx, "m", "p")
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageStart, genErr.Stage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	s := &Streamer{Provider: &fakeProvider{deltas: []string{"a", "b", "c"}}}

	stream, err := s.Open(context.Background(), "m", "p")
	require.NoError(t, err)
	stream.Close()
	stream.Close()
	assert.False(t, stream.Next())
}
