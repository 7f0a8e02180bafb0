package tldr

import (
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// Throttle decides when the reporter may issue an intermediate edit.
type Throttle interface {
	// Ready reports whether an edit showing text may be issued at now.
	Ready(text string, now time.Time) bool
	// Pause is how long to wait after an intermediate edit before consuming
	// the next delta.
	Pause() time.Duration
}

// IntervalThrottle allows at most one intermediate edit per interval. The
// first delta is shown immediately.
type IntervalThrottle struct {
	limiter *rate.Limiter
}

// NewIntervalThrottle returns a throttle admitting one edit per interval.
func NewIntervalThrottle(interval time.Duration) *IntervalThrottle {
	return &IntervalThrottle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *IntervalThrottle) Ready(_ string, now time.Time) bool {
	return t.limiter.AllowN(now, 1)
}

func (t *IntervalThrottle) Pause() time.Duration { return 0 }

// ModuloThrottle edits whenever the accumulated character count is a
// non-zero multiple of Every, then pauses for Delay. Deltas that jump over
// a multiple produce no edit until the final flush.
type ModuloThrottle struct {
	Every int
	Delay time.Duration
}

func (t ModuloThrottle) Ready(text string, _ time.Time) bool {
	if t.Every <= 0 {
		return false
	}
	n := utf8.RuneCountInString(text)
	return n > 0 && n%t.Every == 0
}

func (t ModuloThrottle) Pause() time.Duration { return t.Delay }
