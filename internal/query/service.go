// Package query serves read-only views over the observation dataset. The
// snapshot is immutable once built; a reload builds a new one and swaps
// it atomically, so concurrent readers never see partial state.
package query

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"bvlwatch/internal/market"
	"bvlwatch/internal/store"
)

var (
	ErrServiceUnavailable = errors.New("no data available")
	ErrNotFound           = errors.New("ticker not found")
)

// Cutoff bounds the historical part of a ticker view.
const historicalWindow = 30 * 24 * time.Hour

// Snapshot is the validated in-memory view of the dataset: tickers
// re-normalized, rows sorted ascending by observation time.
type Snapshot struct {
	observations []market.Observation
}

func NewSnapshot(observations []market.Observation) *Snapshot {
	rows := make([]market.Observation, len(observations))
	copy(rows, observations)
	for i := range rows {
		rows[i].Ticker = market.NormalizeTicker(rows[i].Ticker)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ObservedAt.Before(rows[j].ObservedAt)
	})
	return &Snapshot{observations: rows}
}

func (s *Snapshot) Empty() bool { return len(s.observations) == 0 }

func (s *Snapshot) Observations() []market.Observation { return s.observations }

// Result is the explicit outcome of a load: either a populated snapshot
// or an empty one with the reason the service is degraded.
type Result struct {
	Snapshot *Snapshot
	Loaded   bool
	Reason   string
}

// Load reads and validates the dataset. A missing file degrades to an
// empty snapshot instead of failing, so the service can come up and
// report "no data" while the ingestion side catches up.
func Load(ds *store.Dataset) (Result, error) {
	rows, exists, err := ds.Read()
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{
			Snapshot: NewSnapshot(nil),
			Reason:   fmt.Sprintf("dataset %s does not exist yet", ds.Path()),
		}, nil
	}
	if len(rows) == 0 {
		return Result{
			Snapshot: NewSnapshot(nil),
			Reason:   fmt.Sprintf("dataset %s is empty", ds.Path()),
		}, nil
	}
	return Result{Snapshot: NewSnapshot(rows), Loaded: true}, nil
}

type Realtime struct {
	Price      float64   `json:"price"`
	Variation  float64   `json:"variation"`
	Volume     float64   `json:"volume"`
	ObservedAt time.Time `json:"observed_at"`
}

type Point struct {
	Price      float64   `json:"price"`
	Variation  float64   `json:"variation"`
	Volume     float64   `json:"volume"`
	ObservedAt time.Time `json:"observed_at"`
}

type Metadata struct {
	Count     int        `json:"count"`
	RangeFrom *time.Time `json:"range_from,omitempty"`
	RangeTo   *time.Time `json:"range_to,omitempty"`
}

type View struct {
	Realtime   Realtime `json:"realtime"`
	Historical []Point  `json:"historical"`
	Metadata   Metadata `json:"metadata"`
}

// Service answers ticker queries against the current snapshot.
type Service struct {
	dataset *store.Dataset
	state   atomic.Pointer[Result]
}

func NewService(ds *store.Dataset) *Service {
	s := &Service{dataset: ds}
	s.state.Store(&Result{
		Snapshot: NewSnapshot(nil),
		Reason:   "not loaded",
	})
	return s
}

// Reload builds a fresh snapshot from the dataset and swaps it in. On
// failure a previously loaded snapshot is kept; a service that never
// loaded records the failure as its degraded reason.
func (s *Service) Reload() error {
	res, err := Load(s.dataset)
	if err != nil {
		if cur := s.state.Load(); !cur.Loaded {
			s.state.Store(&Result{
				Snapshot: NewSnapshot(nil),
				Reason:   err.Error(),
			})
		}
		return err
	}
	s.state.Store(&res)
	return nil
}

// Status reports whether data is loaded and, if not, why.
func (s *Service) Status() (bool, string) {
	cur := s.state.Load()
	return cur.Loaded, cur.Reason
}

// ListTickers returns the distinct normalized tickers present, sorted.
func (s *Service) ListTickers() ([]string, error) {
	snap := s.state.Load().Snapshot
	if snap.Empty() {
		return nil, ErrServiceUnavailable
	}
	seen := make(map[string]struct{})
	var out []string
	for _, obs := range snap.Observations() {
		if _, ok := seen[obs.Ticker]; ok {
			continue
		}
		seen[obs.Ticker] = struct{}{}
		out = append(out, obs.Ticker)
	}
	sort.Strings(out)
	return out, nil
}

// TickerView answers the latest-plus-window query for one ticker. The
// realtime part always reflects the newest observation regardless of the
// cutoff; the historical part is bounded by the 30-day window, newest
// first, with partially-null rows dropped rather than padded.
func (s *Service) TickerView(ticker string, now time.Time) (*View, error) {
	snap := s.state.Load().Snapshot
	if snap.Empty() {
		return nil, ErrServiceUnavailable
	}

	want := market.NormalizeTicker(ticker)
	var rows []market.Observation
	for _, obs := range snap.Observations() {
		if obs.Ticker == want {
			rows = append(rows, obs)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	latest := rows[len(rows)-1]
	view := &View{
		Realtime: Realtime{
			Price:      valueOrZero(latest.Last),
			Variation:  valueOrZero(latest.PercentChange),
			Volume:     valueOrZero(latest.Volume),
			ObservedAt: latest.ObservedAt,
		},
		Historical: []Point{},
	}

	cutoff := now.Add(-historicalWindow)
	for i := len(rows) - 1; i >= 0; i-- {
		obs := rows[i]
		if obs.ObservedAt.Before(cutoff) {
			continue
		}
		if obs.Last == nil || obs.PercentChange == nil || obs.Volume == nil {
			continue
		}
		view.Historical = append(view.Historical, Point{
			Price:      *obs.Last,
			Variation:  *obs.PercentChange,
			Volume:     *obs.Volume,
			ObservedAt: obs.ObservedAt,
		})
	}

	view.Metadata.Count = len(view.Historical)
	if n := len(view.Historical); n > 0 {
		from := view.Historical[n-1].ObservedAt
		to := view.Historical[0].ObservedAt
		view.Metadata.RangeFrom = &from
		view.Metadata.RangeTo = &to
	}
	return view, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
