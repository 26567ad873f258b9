// Package scheduler drives the ingestion pipeline: a fixed number of
// fetch→normalize→merge→persist iterations with a blocking wait in
// between. Failures are iteration-local; the run always completes.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"bvlwatch/internal/journal"
	"bvlwatch/internal/market"
	"bvlwatch/internal/store"
)

type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateProcessing State = "processing"
	StateWaiting    State = "waiting"
	StateDone       State = "done"
)

// Fetcher performs one upstream round trip.
type Fetcher interface {
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// Recorder receives one entry per iteration. *journal.Journal satisfies it.
type Recorder interface {
	Insert(journal.Entry) error
}

type Config struct {
	Targets    []string
	Iterations int
	Wait       time.Duration
}

type IterationResult struct {
	Iteration int
	Outcome   string
	Rows      int
	Err       error
}

type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	dataset *store.Dataset
	journal Recorder
	targets map[string]struct{}
	runID   string
	state   State
}

func New(cfg Config, fetcher Fetcher, ds *store.Dataset, rec Recorder) *Scheduler {
	targets := make(map[string]struct{}, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets[t] = struct{}{}
	}
	return &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		dataset: ds,
		journal: rec,
		targets: targets,
		runID:   uuid.NewString(),
		state:   StateIdle,
	}
}

func (s *Scheduler) State() State { return s.state }

func (s *Scheduler) RunID() string { return s.runID }

// Run executes the configured iterations sequentially and returns their
// outcomes. No iteration failure aborts the run.
func (s *Scheduler) Run(ctx context.Context) []IterationResult {
	log.Printf("run %s: starting %d iterations (wait %s)", s.runID, s.cfg.Iterations, s.cfg.Wait)

	results := make([]IterationResult, 0, s.cfg.Iterations)
	for i := 0; i < s.cfg.Iterations; i++ {
		res := s.iterate(ctx, i+1)
		results = append(results, res)
		s.record(res)

		if i < s.cfg.Iterations-1 {
			s.state = StateWaiting
			log.Printf("run %s: iteration %d/%d %s, waiting %s", s.runID, i+1, s.cfg.Iterations, res.Outcome, s.cfg.Wait)
			time.Sleep(s.cfg.Wait)
		}
	}

	s.state = StateDone
	log.Printf("run %s: finished after %d iterations", s.runID, s.cfg.Iterations)
	return results
}

func (s *Scheduler) iterate(ctx context.Context, n int) IterationResult {
	s.state = StateFetching
	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		log.Printf("run %s: iteration %d fetch: %v", s.runID, n, err)
		return IterationResult{Iteration: n, Outcome: journal.OutcomeFailed, Err: err}
	}

	s.state = StateProcessing
	batch, err := market.Normalize(raw, s.targets, time.Now().Truncate(time.Second))
	if err != nil {
		var nerr *market.NormalizationError
		if errors.As(err, &nerr) && nerr.Kind == market.NoTargetMatch {
			log.Printf("run %s: iteration %d: %v", s.runID, n, err)
			return IterationResult{Iteration: n, Outcome: journal.OutcomeNoMatch, Err: err}
		}
		log.Printf("run %s: iteration %d normalize: %v", s.runID, n, err)
		return IterationResult{Iteration: n, Outcome: journal.OutcomeSkipped, Err: err}
	}

	existing, _, err := s.dataset.Read()
	if err != nil {
		log.Printf("run %s: iteration %d read dataset: %v", s.runID, n, err)
		return IterationResult{Iteration: n, Outcome: journal.OutcomeFailed, Err: err}
	}
	merged := store.Merge(existing, batch)
	if err := s.dataset.Write(merged); err != nil {
		log.Printf("run %s: iteration %d persist: %v", s.runID, n, err)
		return IterationResult{Iteration: n, Outcome: journal.OutcomeFailed, Err: err}
	}

	log.Printf("run %s: iteration %d merged %d rows (%d total)", s.runID, n, len(batch), len(merged))
	return IterationResult{Iteration: n, Outcome: journal.OutcomeMerged, Rows: len(batch)}
}

func (s *Scheduler) record(res IterationResult) {
	if s.journal == nil {
		return
	}
	e := journal.Entry{
		RunID:      s.runID,
		Iteration:  res.Iteration,
		Outcome:    res.Outcome,
		RowsMerged: res.Rows,
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	if err := s.journal.Insert(e); err != nil {
		log.Printf("run %s: journal insert: %v", s.runID, err)
	}
}
