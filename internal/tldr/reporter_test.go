package tldr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, p *fakeProvider) *Stream {
	t.Helper()
	stream, err := (&Streamer{Provider: p}).Open(context.Background(), "m", "prompt")
	require.NoError(t, err)
	return stream
}

func TestReport_ModuloOnlyFinalEdit(t *testing.T) {
	m := &fakeMessenger{}
	var pauses []time.Duration
	r := &Reporter{
		Messenger: m,
		Throttle:  ModuloThrottle{Every: 10, Delay: 2 * time.Second},
		Header:    FormatHeader(1),
		Sleep: func(_ context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return nil
		},
	}

	sum, err := r.Report(context.Background(), Target{ChatID: 9, MessageID: 3},
		openStream(t, &fakeProvider{deltas: []string{"Lo", "rem ip", "sum."}}))
	require.NoError(t, err)

	assert.Equal(t, "Lorem ipsum.", sum.Text)
	assert.Equal(t, StateFinalized, sum.State)
	assert.True(t, sum.Terminal)
	assert.Equal(t, []string{"TLDR of the last 1 hour(s):\n\nLorem ipsum."}, m.editTexts())
	assert.Empty(t, pauses)
}

func TestReport_ModuloEditsAtMultiples(t *testing.T) {
	m := &fakeMessenger{}
	var pauses int
	r := &Reporter{
		Messenger: m,
		Throttle:  ModuloThrottle{Every: 10, Delay: 2 * time.Second},
		Sleep: func(context.Context, time.Duration) error {
			pauses++
			return nil
		},
	}

	sum, err := r.Report(context.Background(), Target{ChatID: 9, MessageID: 3},
		openStream(t, &fakeProvider{deltas: []string{"Lorem ipsu", "m dolor si", "t"}}))
	require.NoError(t, err)

	assert.Equal(t, []string{"Lorem ipsu", "Lorem ipsum dolor si", "Lorem ipsum dolor sit"}, m.editTexts())
	assert.Equal(t, 3, sum.Edits)
	assert.Equal(t, 2, pauses)
	for _, e := range m.edits {
		assert.Equal(t, int64(9), e.chatID)
		assert.Equal(t, int64(3), e.messageID)
	}
}

func TestReport_IntervalThrottle(t *testing.T) {
	m := &fakeMessenger{}
	r := &Reporter{
		Messenger: m,
		Throttle:  NewIntervalThrottle(time.Hour),
		Header:    FormatHeader(2),
		Now:       fixedClock(time.Unix(1700000000, 0)),
	}

	sum, err := r.Report(context.Background(), Target{ChatID: 1, MessageID: 1},
		openStream(t, &fakeProvider{deltas: []string{"a", "b", "c"}}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"TLDR of the last 2 hour(s):\n\na",
		"TLDR of the last 2 hour(s):\n\nabc",
	}, m.editTexts())
	assert.Equal(t, "abc", sum.Text)
}

func TestReport_EmptyGenerationStillFinalizes(t *testing.T) {
	m := &fakeMessenger{}
	r := &Reporter{Messenger: m, Throttle: ModuloThrottle{Every: 10}, Header: FormatHeader(1)}

	sum, err := r.Report(context.Background(), Target{ChatID: 1, MessageID: 1}, openStream(t, &fakeProvider{}))
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, sum.State)
	assert.Equal(t, []string{"TLDR of the last 1 hour(s):\n\n"}, m.editTexts())
}

func TestReport_MidStreamFailureReplacesText(t *testing.T) {
	m := &fakeMessenger{}
	var kinds []string
	r := &Reporter{
		Messenger: m,
		Throttle:  ModuloThrottle{Every: 1},
		Sleep:     noSleep,
		OnEdit:    func(kind, _ string) { kinds = append(kinds, kind) },
	}

	sum, err := r.Report(context.Background(), Target{ChatID: 1, MessageID: 1},
		openStream(t, &fakeProvider{deltas: []string{"par"}, err: errBackend}))

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, StageStream, genErr.Stage)
	assert.Equal(t, StateFailed, sum.State)
	assert.Equal(t, "par", sum.Text)

	edits := m.editTexts()
	require.Len(t, edits, 2)
	assert.Equal(t, GenerationErrorPrefix+"connection refused", edits[1])
	assert.Equal(t, []string{EditIntermediate, EditError}, kinds)
}

func TestReport_EditFailureIsPlatformError(t *testing.T) {
	m := &fakeMessenger{editErr: errors.New("message to edit not found")}
	r := &Reporter{Messenger: m, Throttle: ModuloThrottle{Every: 10}}

	sum, err := r.Report(context.Background(), Target{ChatID: 1, MessageID: 1},
		openStream(t, &fakeProvider{deltas: []string{"abc"}}))

	var perr *PlatformError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "edit", perr.Op)
	assert.Equal(t, StateFailed, sum.State)
}

func TestFail_FallsBackToNewMessage(t *testing.T) {
	m := &fakeMessenger{editErr: errors.New("message to edit not found")}
	r := &Reporter{Messenger: m}

	require.NoError(t, r.Fail(context.Background(), Target{ChatID: 4, MessageID: 2}, errBackend))
	require.Len(t, m.sends, 1)
	assert.Equal(t, int64(4), m.sends[0].chatID)
	assert.True(t, strings.HasPrefix(m.sends[0].text, GenerationErrorPrefix))
}

func TestFail_SendFailure(t *testing.T) {
	m := &fakeMessenger{editErr: errors.New("gone"), sendErr: []error{errors.New("forbidden")}}
	r := &Reporter{Messenger: m}

	err := r.Fail(context.Background(), Target{ChatID: 4, MessageID: 2}, errBackend)
	var perr *PlatformError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "send", perr.Op)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "finalized", StateFinalized.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
