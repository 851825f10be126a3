package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rickgao/pylon/internal/metrics"
	"github.com/rickgao/pylon/internal/ratelimit"
)

// Request describes one outbound call. Body is replayable across retries;
// Stream is not, so streamed requests fail fast on any retryable condition.
type Request struct {
	Route       ratelimit.Route
	Method      string
	Path        string
	Body        []byte
	Stream      io.Reader
	ContentType string
}

// rateLimitBody is the JSON body of an over-limit response.
type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// Do executes the request with the dispatcher's full retry policy and
// returns the response body.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	replayable := req.Stream == nil

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBackoff
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	var rateLimitRetried bool
	serverRetries := 0

	for {
		body, err := c.attempt(ctx, req)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		var rle *RateLimitError
		if errors.As(err, &rle) {
			// Over-limit responses are retried exactly once after the
			// server-specified delay. The limiter already recorded any
			// global pause from the headers.
			if rateLimitRetried || !replayable {
				return nil, err
			}
			rateLimitRetried = true
			c.logger.Warn("rate limited, retrying after delay",
				"path", req.Path,
				"retry_after", rle.RetryAfter,
				"global", rle.Global,
			)
			if err := sleepCtx(ctx, rle.RetryAfter); err != nil {
				return nil, err
			}
			continue
		}

		if !isTransient(err) {
			return nil, err
		}

		serverRetries++
		if serverRetries > c.maxRetries || !replayable {
			return nil, fmt.Errorf("max retries exceeded: %w", err)
		}

		wait := bo.NextBackOff()
		c.logger.Debug("retrying request",
			"path", req.Path,
			"attempt", serverRetries,
			"backoff", wait,
			"error", err,
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single acquire/request/release cycle.
func (c *Client) attempt(ctx context.Context, req Request) ([]byte, error) {
	acquireStart := time.Now()
	bucket, err := c.limiter.Acquire(ctx, req.Route)
	if err != nil {
		return nil, err
	}
	if time.Since(acquireStart) > 10*time.Millisecond {
		metrics.RateLimitWaits.Inc()
	}

	var reader io.Reader
	if req.Stream != nil {
		reader = req.Stream
	} else if req.Body != nil {
		reader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reader)
	if err != nil {
		c.limiter.Release(bucket, nil)
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bot "+c.token)
	}
	if reader != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// No response, no headers: the release still returns the token.
		c.limiter.Release(bucket, nil)
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	// Rate-limit headers arrive on error responses too.
	c.limiter.Release(bucket, resp.Header)

	if readErr != nil {
		metrics.RequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read response: %w", readErr)
	}

	return c.classify(resp, body)
}

// classify maps the response to the dispatcher's error taxonomy.
func (c *Client) classify(resp *http.Response, body []byte) ([]byte, error) {
	switch {
	case resp.StatusCode < 400:
		metrics.RequestsTotal.WithLabelValues("2xx").Inc()
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.RequestsTotal.WithLabelValues("429").Inc()
		var rl rateLimitBody
		json.Unmarshal(body, &rl)
		retryAfter := time.Duration(rl.RetryAfter * float64(time.Second))
		if retryAfter <= 0 {
			if v := resp.Header.Get("Retry-After"); v != "" {
				if secs, err := strconv.ParseFloat(v, 64); err == nil {
					retryAfter = time.Duration(secs * float64(time.Second))
				}
			}
		}
		return nil, &RateLimitError{
			APIError:   APIError{StatusCode: resp.StatusCode, Message: rl.Message, Body: body},
			RetryAfter: retryAfter,
			Global:     rl.Global,
		}

	case resp.StatusCode == http.StatusUnauthorized:
		metrics.RequestsTotal.WithLabelValues("4xx").Inc()
		return nil, &AuthError{APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}}

	case resp.StatusCode >= 500:
		metrics.RequestsTotal.WithLabelValues("5xx").Inc()
		return nil, &ServerError{APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}}

	default:
		metrics.RequestsTotal.WithLabelValues("4xx").Inc()
		return nil, &ClientError{APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}}
	}
}

// isTransient reports whether the error warrants a backoff retry: server
// errors, timeouts, and dropped connections. Typed 4xx errors are final.
func isTransient(err error) bool {
	var (
		se *ServerError
		ce *ClientError
		ae *AuthError
		rl *RateLimitError
	)
	switch {
	case errors.As(err, &se):
		return true
	case errors.As(err, &ce), errors.As(err, &ae), errors.As(err, &rl):
		return false
	}
	// Transport-level failure (timeout, reset, refused).
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
