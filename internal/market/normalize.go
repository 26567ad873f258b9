package market

import (
	"encoding/json"
	"fmt"
	"time"
)

type rawEnvelope struct {
	Content json.RawMessage `json:"content"`
}

type rawCompany struct {
	CompanyName        string          `json:"companyName"`
	Last               json.RawMessage `json:"last"`
	Buy                json.RawMessage `json:"buy"`
	Sell               json.RawMessage `json:"sell"`
	PercentageChange   json.RawMessage `json:"percentageChange"`
	NegotiatedQuantity json.RawMessage `json:"negotiatedQuantity"`
}

// Normalize turns a raw quote-board payload into a Batch for the target
// companies. Targets are matched exactly against the company name as the
// source sends it; identity is normalized only on the resulting rows.
// Every row is stamped with observedAt: rows fetched together are one
// logical observation round.
func Normalize(raw []byte, targets map[string]struct{}, observedAt time.Time) (Batch, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &NormalizationError{Kind: MalformedPayload, Msg: err.Error()}
	}
	if len(env.Content) == 0 {
		return nil, &NormalizationError{Kind: MalformedPayload, Msg: "missing content field"}
	}

	var companies []rawCompany
	if err := json.Unmarshal(env.Content, &companies); err != nil {
		return nil, &NormalizationError{Kind: MalformedPayload, Msg: "content is not a list"}
	}
	if companies == nil {
		return nil, &NormalizationError{Kind: MalformedPayload, Msg: "content is null"}
	}

	batch := make(Batch, 0, len(targets))
	for _, c := range companies {
		if _, ok := targets[c.CompanyName]; !ok {
			continue
		}
		batch = append(batch, Observation{
			Ticker:        NormalizeTicker(c.CompanyName),
			ObservedAt:    observedAt,
			Last:          numberOrNil(c.Last),
			Buy:           numberOrZero(c.Buy),
			Sell:          numberOrZero(c.Sell),
			PercentChange: numberOrNil(c.PercentageChange),
			Volume:        numberOrNil(c.NegotiatedQuantity),
		})
	}
	if len(batch) == 0 {
		return nil, &NormalizationError{
			Kind: NoTargetMatch,
			Msg:  fmt.Sprintf("none of %d targets present in %d records", len(targets), len(companies)),
		}
	}
	return batch, nil
}

func numberOrNil(raw json.RawMessage) *float64 {
	// An explicit null is "absent": unmarshalling null into a float64 is
	// a no-op that would otherwise hand back a pointer to 0.
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

func numberOrZero(raw json.RawMessage) float64 {
	if v := numberOrNil(raw); v != nil {
		return *v
	}
	return 0
}
