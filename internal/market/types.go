package market

import (
	"fmt"
	"strings"
	"time"
)

// Observation is one ticker's market snapshot at one recorded instant.
// Nullable fields stay nil when the source omits them; Buy and Sell are
// defaulted to 0 instead because the pipeline depends on them.
type Observation struct {
	Ticker        string
	ObservedAt    time.Time
	Last          *float64
	Buy           float64
	Sell          float64
	PercentChange *float64
	Volume        *float64
}

// Batch holds the observations produced by a single fetch iteration.
// All rows share one ObservedAt.
type Batch []Observation

// NormalizeTicker produces the canonical ticker identity.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type NormalizationKind string

const (
	MalformedPayload NormalizationKind = "malformed_payload"
	NoTargetMatch    NormalizationKind = "no_target_match"
)

type NormalizationError struct {
	Kind NormalizationKind
	Msg  string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize: %s: %s", e.Kind, e.Msg)
}
