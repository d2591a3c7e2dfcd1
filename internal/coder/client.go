package coder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Outcome classifies the result of an Execute call.
type Outcome int

const (
	// OutcomeSuccess means the remote API answered with the expected status.
	OutcomeSuccess Outcome = iota
	// OutcomeRejected means the remote API answered with an unexpected
	// status. The request was understood and refused; retrying the same
	// input would repeat the refusal.
	OutcomeRejected
	// OutcomeExhausted means every attempt failed at the transport level
	// (timeout, TLS, connection reset) and the retry budget ran out.
	OutcomeExhausted
)

var (
	// ErrRejected reports a definitive remote rejection.
	ErrRejected = errors.New("request rejected by remote api")
	// ErrExhausted reports that all retry attempts failed transiently.
	ErrExhausted = errors.New("retry attempts exhausted")
)

// Result carries the typed outcome of an Execute call. Status and Body are
// populated for OutcomeSuccess and OutcomeRejected.
type Result struct {
	Outcome Outcome
	Status  int
	Body    []byte
}

// Err maps the outcome onto an error for callers that only need
// success/failure.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeRejected:
		return fmt.Errorf("%w: status %d", ErrRejected, r.Status)
	default:
		return ErrExhausted
	}
}

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodDelete: true,
}

// Client executes HTTP calls against an external API with bounded retries.
// Transport-level failures are retried with a steep cubic backoff suited to
// an API with coarse rate limits; remote rejections are never retried.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	backoff func(attempt int) time.Duration
}

// NewClient builds a retrying client with the given per-attempt timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		backoff: cubicBackoff,
	}
}

// cubicBackoff sleeps attempt³ seconds plus a 200ms floor: 0.2s, 1.2s,
// 8.2s, 27.2s.
func cubicBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt*attempt)*time.Second + 200*time.Millisecond
}

// Execute performs the request up to maxAttempts times. A response with
// successStatus yields OutcomeSuccess with the body; any other status is a
// definitive failure returned immediately. An unsupported method is a
// programmer error and panics.
func (c *Client) Execute(ctx context.Context, method, url string, header http.Header, body []byte, successStatus, maxAttempts int) Result {
	if !supportedMethods[method] {
		panic(fmt.Sprintf("coder: unsupported http method %q", method))
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, retryable := c.attempt(ctx, method, url, header, body, successStatus)
		if !retryable {
			return result
		}

		if attempt < maxAttempts-1 {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				break
			}
		}
	}

	c.logger.Error("request failed after exhausting retries",
		"method", method, "url", url, "attempts", maxAttempts)
	return Result{Outcome: OutcomeExhausted}
}

// attempt runs a single request. The second return value reports whether
// the failure was transient and worth retrying.
func (c *Client) attempt(ctx context.Context, method, url string, header http.Header, body []byte, successStatus int) (Result, bool) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("build request", "method", method, "url", url, "error", err)
		return Result{Outcome: OutcomeExhausted}, true
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("transient request failure", "method", method, "url", url, "error", err)
		return Result{Outcome: OutcomeExhausted}, true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("read response body", "method", method, "url", url, "error", err)
		return Result{Outcome: OutcomeExhausted}, true
	}

	if resp.StatusCode == successStatus {
		return Result{Outcome: OutcomeSuccess, Status: resp.StatusCode, Body: respBody}, false
	}

	c.logger.Error("request rejected",
		"method", method, "url", url, "status", resp.StatusCode, "body", string(respBody))
	return Result{Outcome: OutcomeRejected, Status: resp.StatusCode, Body: respBody}, false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
