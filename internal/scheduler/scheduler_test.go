package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bvlwatch/internal/journal"
	"bvlwatch/internal/store"
)

type fakeFetcher struct {
	calls     int
	responses []any // []byte for a payload, error for a failure
}

func (f *fakeFetcher) Fetch(context.Context) (json.RawMessage, error) {
	var r any
	if f.calls < len(f.responses) {
		r = f.responses[f.calls]
	} else {
		r = f.responses[len(f.responses)-1]
	}
	f.calls++
	if err, ok := r.(error); ok {
		return nil, err
	}
	return r.([]byte), nil
}

type fakeRecorder struct {
	entries []journal.Entry
}

func (r *fakeRecorder) Insert(e journal.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newScheduler(t *testing.T, fetcher Fetcher, iterations int) (*Scheduler, *store.Dataset, *fakeRecorder) {
	t.Helper()
	ds := store.New(filepath.Join(t.TempDir(), "bvl.csv"))
	rec := &fakeRecorder{}
	s := New(Config{
		Targets:    []string{"ACME"},
		Iterations: iterations,
		Wait:       0,
	}, fetcher, ds, rec)
	return s, ds, rec
}

func TestRun_MergesEachIteration(t *testing.T) {
	fetcher := &fakeFetcher{responses: []any{
		[]byte(`{"content":[{"companyName":"ACME","last":10.5}]}`),
	}}
	s, ds, rec := newScheduler(t, fetcher, 2)

	results := s.Run(context.Background())

	require.Equal(t, StateDone, s.State())
	require.Len(t, results, 2)
	for _, res := range results {
		require.Equal(t, journal.OutcomeMerged, res.Outcome)
		require.Equal(t, 1, res.Rows)
	}
	require.Equal(t, 2, fetcher.calls)
	require.Len(t, rec.entries, 2)
	require.Equal(t, s.RunID(), rec.entries[0].RunID)

	rows, exists, err := ds.Read()
	require.NoError(t, err)
	require.True(t, exists)
	// Iterations land in different seconds at most once each; dedup keeps
	// the count at or below the iteration count.
	require.NotEmpty(t, rows)
	require.LessOrEqual(t, len(rows), 2)
}

func TestRun_FetchFailureIsIterationLocal(t *testing.T) {
	fetcher := &fakeFetcher{responses: []any{
		errors.New("upstream down"),
		[]byte(`{"content":[{"companyName":"ACME","last":10.5}]}`),
	}}
	s, ds, rec := newScheduler(t, fetcher, 2)

	results := s.Run(context.Background())

	require.Equal(t, journal.OutcomeFailed, results[0].Outcome)
	require.Error(t, results[0].Err)
	require.Equal(t, journal.OutcomeMerged, results[1].Outcome)
	require.Len(t, rec.entries, 2)
	require.Equal(t, "upstream down", rec.entries[0].Error)

	rows, _, err := ds.Read()
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRun_PermanentFailureStillCompletesRun(t *testing.T) {
	fetcher := &fakeFetcher{responses: []any{errors.New("upstream down")}}
	s, ds, _ := newScheduler(t, fetcher, 3)

	results := s.Run(context.Background())

	require.Equal(t, StateDone, s.State())
	require.Len(t, results, 3)
	for _, res := range results {
		require.Equal(t, journal.OutcomeFailed, res.Outcome)
	}

	_, exists, err := ds.Read()
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRun_NoTargetMatchIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{responses: []any{
		[]byte(`{"content":[{"companyName":"OTHER","last":3}]}`),
	}}
	s, ds, rec := newScheduler(t, fetcher, 1)

	results := s.Run(context.Background())

	require.Equal(t, journal.OutcomeNoMatch, results[0].Outcome)
	require.Equal(t, journal.OutcomeNoMatch, rec.entries[0].Outcome)

	_, exists, err := ds.Read()
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRun_MalformedPayloadIsSkipped(t *testing.T) {
	fetcher := &fakeFetcher{responses: []any{
		[]byte(`{"unexpected":"shape"}`),
	}}
	s, ds, _ := newScheduler(t, fetcher, 1)

	results := s.Run(context.Background())

	require.Equal(t, journal.OutcomeSkipped, results[0].Outcome)

	_, exists, err := ds.Read()
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRun_NilJournalIsFine(t *testing.T) {
	fetcher := &fakeFetcher{responses: []any{
		[]byte(`{"content":[{"companyName":"ACME","last":10.5}]}`),
	}}
	ds := store.New(filepath.Join(t.TempDir(), "bvl.csv"))
	s := New(Config{Targets: []string{"ACME"}, Iterations: 1}, fetcher, ds, nil)

	results := s.Run(context.Background())
	require.Equal(t, journal.OutcomeMerged, results[0].Outcome)
}
