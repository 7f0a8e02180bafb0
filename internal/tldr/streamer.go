package tldr

import (
	"context"

	"github.com/stupiduntilnot/tldrbot/internal/model"
)

const defaultStreamBuffer = 64

// Streamer runs generation calls on a background goroutine so a slow
// backend only ever blocks the invocation waiting on it.
type Streamer struct {
	Provider model.Provider
	Buffer   int
}

type streamEvent struct {
	text string
	err  error
}

// Open starts generating and waits until the backend either produced its
// first event or failed. A failure before any delta is returned as a
// *GenerationError with StageStart; otherwise the returned Stream yields
// the deltas.
func (s *Streamer) Open(ctx context.Context, modelID, prompt string) (*Stream, error) {
	buffer := s.Buffer
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan streamEvent, buffer)

	go func() {
		defer close(events)
		send := func(ev streamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for chunk, err := range s.Provider.GenerateStream(ctx, modelID, prompt) {
			if err != nil {
				send(streamEvent{err: err})
				return
			}
			if chunk.Text != "" && !send(streamEvent{text: chunk.Text}) {
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	stream := &Stream{ctx: ctx, events: events, cancel: cancel}
	select {
	case ev, ok := <-events:
		if !ok {
			if err := ctx.Err(); err != nil {
				cancel()
				return nil, &GenerationError{Stage: StageStart, Err: err}
			}
			return stream, nil
		}
		if ev.err != nil {
			cancel()
			return nil, &GenerationError{Stage: StageStart, Err: ev.err}
		}
		stream.pending = &ev
		return stream, nil
	case <-ctx.Done():
		cancel()
		return nil, &GenerationError{Stage: StageStart, Err: ctx.Err()}
	}
}

// Stream is a single-pass sequence of generated deltas.
type Stream struct {
	ctx     context.Context
	events  <-chan streamEvent
	cancel  context.CancelFunc
	pending *streamEvent
	current string
	err     error
	done    bool
}

// Next advances to the next delta. It returns false once the stream is
// exhausted or failed; Err tells which.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	var ev streamEvent
	if s.pending != nil {
		ev = *s.pending
		s.pending = nil
	} else {
		var ok bool
		ev, ok = <-s.events
		if !ok {
			if err := s.ctx.Err(); err != nil {
				s.err = &GenerationError{Stage: StageStream, Err: err}
			}
			s.finish()
			return false
		}
	}
	if ev.err != nil {
		s.err = &GenerationError{Stage: StageStream, Err: ev.err}
		s.finish()
		return false
	}
	s.current = ev.text
	return true
}

// Delta returns the delta Next advanced to.
func (s *Stream) Delta() string {
	return s.current
}

// Err returns the mid-stream failure, if any.
func (s *Stream) Err() error {
	return s.err
}

// Close stops the background call. It is safe to call more than once.
func (s *Stream) Close() {
	s.finish()
}

func (s *Stream) finish() {
	s.done = true
	s.cancel()
}
