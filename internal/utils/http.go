package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether repeating the request could help.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Observer receives the outcome ("success", "retry" or "error") of every attempt.
type Observer func(outcome string, elapsed time.Duration)

// FetchJSON performs the request built by newRequest and decodes the JSON
// body into out, retrying transport errors and retryable statuses.
func FetchJSON(ctx context.Context, client *http.Client, newRequest func(ctx context.Context) (*http.Request, error), out interface{}, retry RetryConfig, observe Observer) error {
	return Retry(ctx, retry, func(attempt int) error {
		start := time.Now()
		err := fetchOnce(ctx, client, newRequest, out)
		if observe != nil {
			outcome := "success"
			if err != nil {
				outcome = "retry"
				if attempt >= retry.Attempts || !isRetryable(err) {
					outcome = "error"
				}
			}
			observe(outcome, time.Since(start))
		}
		if err != nil && !isRetryable(err) {
			return Permanent(err)
		}
		return err
	})
}

func fetchOnce(ctx context.Context, client *http.Client, newRequest func(ctx context.Context) (*http.Request, error), out interface{}) error {
	req, err := newRequest(ctx)
	if err != nil {
		return Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func isRetryable(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.Retryable()
	}
	if _, ok := err.(*permanentError); ok {
		return false
	}
	return true
}
