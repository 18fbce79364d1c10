package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/version"
)

const (
	maxRetryAfter = 5 * time.Second
	maxDetailLen  = 200
)

// Client performs JSON requests against upstream providers. Every call is
// attempted once unless the client was built with retries > 0.
type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
	log        zerolog.Logger
}

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  version.CLIName + "/" + version.CLIVersion,
		log:        zerolog.Nop(),
	}
}

// WithLogger traces each upstream attempt at debug level.
func (c *Client) WithLogger(logger zerolog.Logger) *Client {
	c.log = logger.With().Str("component", "httpx").Logger()
	return c
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var (
		lastErr error
		wait    time.Duration
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if wait <= 0 {
				wait = backoff(attempt)
			}
			select {
			case <-ctx.Done():
				return nil, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(wait):
			}
			wait = 0
		}

		attemptReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
			}
			attemptReq.Body = body
		}

		start := time.Now()
		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			c.log.Debug().Err(err).Str("host", req.URL.Host).Int("attempt", attempt+1).Msg("upstream request failed")
			lastErr = mapNetError(err)
			continue
		}
		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		c.log.Debug().
			Str("host", req.URL.Host).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Dur("latency", time.Since(start)).
			Int("attempt", attempt+1).
			Msg("upstream response")
		if readErr != nil {
			return resp.Header, clierr.Wrap(clierr.CodeUnavailable, "read upstream response", readErr)
		}

		switch status := resp.StatusCode; {
		case status == http.StatusTooManyRequests:
			lastErr = statusError(clierr.CodeRateLimited, "upstream rate limited request", buf)
			wait = retryAfter(resp.Header)
			continue
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return resp.Header, statusError(clierr.CodeAuth, "upstream authentication failed", buf)
		case status == http.StatusNotFound:
			return resp.Header, statusError(clierr.CodeNotFound, "upstream resource not found", buf)
		case status >= http.StatusInternalServerError:
			lastErr = statusError(clierr.CodeUnavailable, fmt.Sprintf("upstream unavailable (status %d)", status), buf)
			continue
		case status < 200 || status >= 300:
			return resp.Header, statusError(clierr.CodeUnsupported, fmt.Sprintf("upstream returned unexpected status %d", status), buf)
		}

		if out == nil {
			return resp.Header, nil
		}
		if len(bytes.TrimSpace(buf)) == 0 {
			return resp.Header, clierr.New(clierr.CodeUnavailable, "upstream returned empty response")
		}
		if err := json.Unmarshal(buf, out); err != nil {
			return resp.Header, clierr.Wrap(clierr.CodeUnavailable, "decode upstream JSON", err)
		}
		return resp.Header, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, clierr.New(clierr.CodeUnavailable, "request failed")
}

// DoBodyJSON sends body as a JSON request with the given headers.
func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// statusError attaches the upstream's own error message, when the body
// carries one, as the cause.
func statusError(code clierr.Code, msg string, body []byte) error {
	if detail := upstreamMessage(body); detail != "" {
		return clierr.Wrap(code, msg, errors.New(detail))
	}
	return clierr.New(code, msg)
}

// upstreamMessage understands {"error":{"message":..}}, {"error":".."} and
// {"message":".."} bodies.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	msg := payload.Message
	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		var flat string
		switch {
		case json.Unmarshal(payload.Error, &flat) == nil:
			msg = flat
		case json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			msg = nested.Message
		}
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxDetailLen {
		msg = msg[:maxDetailLen] + "..."
	}
	return msg
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func mapNetError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "upstream timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "upstream request failed", err)
}

func backoff(attempt int) time.Duration {
	d := min(120*time.Millisecond*time.Duration(1<<uint(attempt-1)), 2*time.Second)
	return d + time.Duration(rand.IntN(75))*time.Millisecond
}
