package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RetryPolicy bounds the client's attempts. Delay between attempt n and
// n+1 is BaseDelay << n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

type ClientConfig struct {
	URL          string
	Headers      map[string]string
	Sector       string
	CompanyCode  string
	InputCompany string
	Timeout      time.Duration
	Retry        RetryPolicy
}

// Client fetches the daily quote board from the BVL data-on-demand API.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type quoteRequest struct {
	Sector       string `json:"sector"`
	Today        bool   `json:"today"`
	CompanyCode  string `json:"companyCode"`
	InputCompany string `json:"inputCompany"`
}

// Fetch performs the upstream round trip. Transport errors, non-2xx
// statuses and bodies that are not JSON objects all count as failed
// attempts; after the policy is exhausted it returns a *FetchError.
// It never touches the dataset.
func (c *Client) Fetch(ctx context.Context) (json.RawMessage, error) {
	body, err := json.Marshal(quoteRequest{
		Sector:       c.cfg.Sector,
		Today:        true,
		CompanyCode:  c.cfg.CompanyCode,
		InputCompany: c.cfg.InputCompany,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &FetchError{Attempts: attempt, Err: ctx.Err()}
			case <-time.After(c.cfg.Retry.BaseDelay << (attempt - 1)):
			}
		}
		raw, err := c.doOnce(ctx, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, &FetchError{Attempts: c.cfg.Retry.MaxAttempts, Err: lastErr}
}

func (c *Client) doOnce(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request bvl: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("bvl status %d: %s", resp.StatusCode, string(b))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return raw, nil
}
