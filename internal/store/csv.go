// Package store owns the durable observation dataset: a UTF-8 CSV with a
// header row, one row per (observation time, ticker). Content is
// logically append-only; on disk every merge is a full rewrite of the
// deduplicated result.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bvlwatch/internal/market"
)

var header = []string{"ticker", "observed_at", "last", "buy", "sell", "percent_change", "volume"}

// Columns every dataset must carry to be loadable.
var requiredColumns = []string{"ticker", "observed_at", "last"}

type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

type LoadKind string

const (
	MissingRequiredFields LoadKind = "missing_required_fields"
	Unreadable            LoadKind = "unreadable"
)

type LoadError struct {
	Kind LoadKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Dataset is a handle on the CSV file location.
type Dataset struct {
	path string
}

func New(path string) *Dataset {
	return &Dataset{path: path}
}

func (d *Dataset) Path() string { return d.path }

// Read loads all observations from disk. A missing file is not an error:
// it returns (nil, false, nil) so callers can start from empty.
func (d *Dataset) Read() ([]market.Observation, bool, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &LoadError{Kind: Unreadable, Path: d.path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, true, &LoadError{Kind: Unreadable, Path: d.path, Err: err}
	}
	if len(records) == 0 {
		return nil, true, nil
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, true, &LoadError{
				Kind: MissingRequiredFields,
				Path: d.path,
				Err:  fmt.Errorf("missing column %q", name),
			}
		}
	}

	out := make([]market.Observation, 0, len(records)-1)
	for i, rec := range records[1:] {
		obs, err := parseRow(rec, cols)
		if err != nil {
			return nil, true, &LoadError{
				Kind: Unreadable,
				Path: d.path,
				Err:  fmt.Errorf("row %d: %w", i+2, err),
			}
		}
		out = append(out, obs)
	}
	return out, true, nil
}

// Merge concatenates existing observations with a new batch and dedups on
// (observed_at, ticker); the later entry wins, keeping the position of the
// first occurrence. Observation time is batch granular, so two rounds
// inside the same timestamp resolution collide here and the later round
// silently replaces the earlier one.
func Merge(existing []market.Observation, batch market.Batch) []market.Observation {
	type key struct {
		at     int64
		ticker string
	}
	merged := make([]market.Observation, 0, len(existing)+len(batch))
	index := make(map[key]int, len(existing)+len(batch))
	for _, obs := range append(append([]market.Observation{}, existing...), batch...) {
		k := key{at: obs.ObservedAt.Unix(), ticker: market.NormalizeTicker(obs.Ticker)}
		if i, ok := index[k]; ok {
			merged[i] = obs
			continue
		}
		index[k] = len(merged)
		merged = append(merged, obs)
	}
	return merged
}

// Write rewrites the dataset. The new content is staged in a temp file in
// the same directory, flushed and closed, then renamed over the target, so
// a concurrent reader sees either the old file or the complete new one.
func (d *Dataset) Write(observations []market.Observation) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistError{Path: d.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return &PersistError{Path: d.path, Err: err}
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return &PersistError{Path: d.path, Err: err}
	}
	for _, obs := range observations {
		if err := w.Write(formatRow(obs)); err != nil {
			tmp.Close()
			return &PersistError{Path: d.path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return &PersistError{Path: d.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PersistError{Path: d.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistError{Path: d.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return &PersistError{Path: d.path, Err: err}
	}
	return nil
}

func parseRow(rec []string, cols map[string]int) (market.Observation, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	at, err := time.Parse(time.RFC3339, get("observed_at"))
	if err != nil {
		return market.Observation{}, fmt.Errorf("observed_at: %w", err)
	}
	obs := market.Observation{
		Ticker:     get("ticker"),
		ObservedAt: at,
	}
	if obs.Last, err = parseNullable(get("last")); err != nil {
		return market.Observation{}, fmt.Errorf("last: %w", err)
	}
	if obs.PercentChange, err = parseNullable(get("percent_change")); err != nil {
		return market.Observation{}, fmt.Errorf("percent_change: %w", err)
	}
	if obs.Volume, err = parseNullable(get("volume")); err != nil {
		return market.Observation{}, fmt.Errorf("volume: %w", err)
	}
	if v, err := parseNullable(get("buy")); err != nil {
		return market.Observation{}, fmt.Errorf("buy: %w", err)
	} else if v != nil {
		obs.Buy = *v
	}
	if v, err := parseNullable(get("sell")); err != nil {
		return market.Observation{}, fmt.Errorf("sell: %w", err)
	} else if v != nil {
		obs.Sell = *v
	}
	return obs, nil
}

func formatRow(obs market.Observation) []string {
	return []string{
		obs.Ticker,
		obs.ObservedAt.Format(time.RFC3339),
		formatNullable(obs.Last),
		strconv.FormatFloat(obs.Buy, 'f', -1, 64),
		strconv.FormatFloat(obs.Sell, 'f', -1, 64),
		formatNullable(obs.PercentChange),
		formatNullable(obs.Volume),
	}
}

func parseNullable(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func formatNullable(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
