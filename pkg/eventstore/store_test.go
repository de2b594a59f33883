package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/contracts"
)

var testBase = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestStore(opts ...Option) *Store {
	opts = append([]Option{WithClock(func() time.Time { return testBase })}, opts...)
	return New(opts...)
}

func validParams() SubmitParams {
	return SubmitParams{
		Type:         contracts.EventAssignmentStarted,
		OccurredAt:   testBase.Add(-time.Hour),
		Actor:        "actor-1",
		Subjects:     []string{"person-1", "position-1"},
		Payload:      map[string]any{"note": "initial"},
		SourceSystem: "test",
	}
}

func TestStore_SubmitRoundTrip(t *testing.T) {
	s := newTestStore()

	e, result, err := s.Submit(context.Background(), validParams())
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.NotEmpty(t, e.ID)
	assert.Equal(t, testBase, e.RecordedAt)

	got, ok := s.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, contracts.EventAssignmentStarted, got.Type)
	assert.True(t, got.OccurredAt.Equal(testBase.Add(-time.Hour)))
	assert.Equal(t, []string{"person-1", "position-1"}, got.Subjects)
	assert.Equal(t, "actor-1", got.Actor)
	assert.Equal(t, "initial", got.Payload["note"])
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetUnknown(t *testing.T) {
	s := newTestStore()
	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestStore_TemporalBounds(t *testing.T) {
	s := newTestStore()

	tooOld := validParams()
	tooOld.OccurredAt = testBase.AddDate(-2, 0, 0)
	e, result, err := s.Submit(context.Background(), tooOld)
	require.NoError(t, err)
	assert.Nil(t, e)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)

	tooFuture := validParams()
	tooFuture.OccurredAt = testBase.Add(2 * time.Hour)
	_, result, err = s.Submit(context.Background(), tooFuture)
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)

	nearFuture := validParams()
	nearFuture.OccurredAt = testBase.Add(30 * time.Minute)
	_, result, err = s.Submit(context.Background(), nearFuture)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	assert.Equal(t, 1, s.Len())
}

func TestStore_RequiredFields(t *testing.T) {
	s := newTestStore()

	missing := validParams()
	missing.Type = ""
	missing.Actor = ""
	_, result, err := s.Submit(context.Background(), missing)
	require.NoError(t, err)
	require.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)

	zeroTime := validParams()
	zeroTime.OccurredAt = time.Time{}
	_, result, _ = s.Submit(context.Background(), zeroTime)
	require.False(t, result.Valid)
	assert.Equal(t, "event_occurrence_required", result.Errors[0].ViolatedRule)
}

func TestStore_CausalLinks(t *testing.T) {
	s := newTestStore()

	pred, result, err := s.Submit(context.Background(), validParams())
	require.NoError(t, err)
	require.True(t, result.Valid)

	// Unknown predecessor is a consistency failure.
	unknown := validParams()
	unknown.CausalLinks = contracts.CausalLinks{CausedBy: []string{"ghost"}}
	_, result, _ = s.Submit(context.Background(), unknown)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryConsistency, result.Errors[0].Category)

	// A predecessor that occurred later is a temporal failure.
	earlier := validParams()
	earlier.OccurredAt = pred.OccurredAt.Add(-time.Hour)
	earlier.CausalLinks = contracts.CausalLinks{PrecededBy: []string{pred.ID}}
	_, result, _ = s.Submit(context.Background(), earlier)
	require.False(t, result.Valid)
	assert.Equal(t, contracts.CategoryTemporal, result.Errors[0].Category)

	// Equal occurrence times are allowed.
	equal := validParams()
	equal.OccurredAt = pred.OccurredAt
	equal.CausalLinks = contracts.CausalLinks{PrecededBy: []string{pred.ID}}
	e, result, _ := s.Submit(context.Background(), equal)
	require.True(t, result.Valid)
	assert.Equal(t, []string{pred.ID}, e.CausalLinks.PrecededBy)
}

func TestStore_ValidityWindow(t *testing.T) {
	s := newTestStore()

	params := validParams()
	params.ValidityWindow = &contracts.ValidityWindow{
		Start: testBase,
		End:   testBase.Add(-time.Hour),
	}
	_, result, _ := s.Submit(context.Background(), params)
	require.False(t, result.Valid)
	assert.Equal(t, "validity_window_inverted", result.Errors[0].ViolatedRule)
}

func TestStore_Indices(t *testing.T) {
	s := newTestStore()

	first := validParams()
	_, result, _ := s.Submit(context.Background(), first)
	require.True(t, result.Valid)

	second := validParams()
	second.Type = contracts.EventAssignmentEnded
	second.Actor = "actor-2"
	second.Subjects = []string{"person-1"}
	_, result, _ = s.Submit(context.Background(), second)
	require.True(t, result.Valid)

	assert.Len(t, s.ByHolon("person-1"), 2)
	assert.Len(t, s.ByHolon("position-1"), 1)
	assert.Empty(t, s.ByHolon("person-9"))
	assert.Len(t, s.ByActor("actor-2"), 1)
	assert.Len(t, s.ByType(contracts.EventAssignmentStarted), 1)
	assert.Len(t, s.ByType(contracts.EventAssignmentEnded), 1)
}

func TestStore_RecordedAtMonotonic(t *testing.T) {
	times := []time.Time{testBase, testBase.Add(-time.Hour)}
	i := 0
	clock := func() time.Time {
		t := times[i%len(times)]
		i++
		return t
	}
	s := New(WithClock(clock))

	p := validParams()
	p.OccurredAt = testBase.Add(-2 * time.Hour)

	first, result, _ := s.Submit(context.Background(), p)
	require.True(t, result.Valid)
	second, result, _ := s.Submit(context.Background(), p)
	require.True(t, result.Valid)

	assert.False(t, second.RecordedAt.Before(first.RecordedAt),
		"recorded_at must never move backwards")
}

func TestStore_ImmutableAfterRecording(t *testing.T) {
	s := newTestStore()

	e, result, _ := s.Submit(context.Background(), validParams())
	require.True(t, result.Valid)

	// Mutating the returned copy must not reach stored state.
	e.Payload["note"] = "tampered"
	e.Subjects[0] = "someone-else"

	got, ok := s.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, "initial", got.Payload["note"])
	assert.Equal(t, "person-1", got.Subjects[0])
}

type fakeRecorder struct {
	calls   int
	lastOK  bool
	lastMsg string
}

func (r *fakeRecorder) RecordEventIngestion(latencyMs float64, success bool, errMsg string) {
	r.calls++
	r.lastOK = success
	r.lastMsg = errMsg
}

func TestStore_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	s := newTestStore(WithRecorder(rec))

	_, result, _ := s.Submit(context.Background(), validParams())
	require.True(t, result.Valid)
	assert.Equal(t, 1, rec.calls)
	assert.True(t, rec.lastOK)

	bad := validParams()
	bad.OccurredAt = testBase.AddDate(-2, 0, 0)
	_, _, _ = s.Submit(context.Background(), bad)
	assert.Equal(t, 2, rec.calls)
	assert.False(t, rec.lastOK)
	assert.NotEmpty(t, rec.lastMsg)
}

type failingJournal struct{ err error }

func (j *failingJournal) AppendEvent(context.Context, *contracts.Event) error { return j.err }

func TestStore_JournalFailureCommitsNothing(t *testing.T) {
	s := newTestStore(WithJournal(&failingJournal{err: errors.New("disk full")}))

	e, result, err := s.Submit(context.Background(), validParams())
	require.Error(t, err)
	assert.Nil(t, e)
	assert.Nil(t, result)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Subscribers(t *testing.T) {
	s := newTestStore()

	var order []string
	s.Subscribe(func(e *contracts.Event) { order = append(order, "first:"+e.ID) })
	panicky := s.Subscribe(func(e *contracts.Event) { panic("boom") })
	s.Subscribe(func(e *contracts.Event) { order = append(order, "second:"+e.ID) })

	e, result, err := s.Submit(context.Background(), validParams())
	require.NoError(t, err)
	require.True(t, result.Valid)

	require.Len(t, order, 2)
	assert.Equal(t, "first:"+e.ID, order[0])
	assert.Equal(t, "second:"+e.ID, order[1])

	assert.True(t, s.Unsubscribe(panicky))
	assert.False(t, s.Unsubscribe(panicky))

	order = order[:0]
	_, _, err = s.Submit(context.Background(), validParams())
	require.NoError(t, err)
	assert.Len(t, order, 2)
}
