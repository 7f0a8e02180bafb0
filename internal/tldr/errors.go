package tldr

import (
	"errors"
	"fmt"
)

// ErrInvalidHours is returned for look-back periods shorter than one hour.
var ErrInvalidHours = errors.New("hours must be a positive integer")

// PlatformError wraps a failed chat platform operation: history retrieval,
// send, or edit.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s failed: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// Generation stages.
const (
	StageStart  = "start"
	StageStream = "stream"
)

// GenerationError reports a backend failure before the first delta
// (StageStart) or after it (StageStream).
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }
