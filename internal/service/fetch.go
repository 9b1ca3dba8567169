// Package service implements the fetch-with-retries logic behind the proxy route.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"devserver/internal/client"
	"devserver/internal/config"
	"devserver/internal/metrics"
	"devserver/internal/model"
)

var (
	// ErrMissingURL is returned when the request carries neither url nor target.
	ErrMissingURL = errors.New("missing url parameter")

	// ErrUpstreamStatus is returned when the remote host answers with a non-2xx status.
	ErrUpstreamStatus = errors.New("upstream returned non-success status")

	// ErrBodyTooLarge is returned when the remote body exceeds upstream.max_body_bytes.
	ErrBodyTooLarge = errors.New("upstream body exceeds size limit")
)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptLanguageHeader = "en-US,en;q=0.5"
)

// ExhaustedError is returned by Fetch when no attempt succeeded.
type ExhaustedError struct {
	URL      string
	Attempts []model.Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempt(s) failed: %v", e.URL, len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchService fetches remote URLs on behalf of the proxy route, retrying
// failed attempts with a linear backoff.
type FetchService struct {
	client       *client.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxAttempts  int
	backoffStep  time.Duration
	maxBodyBytes int64
	userAgent    string
	sleep        sleepFunc
}

// NewFetchService creates a FetchService from the upstream config section.
// The metrics parameter is optional.
func NewFetchService(c *client.Client, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *FetchService {
	ua := cfg.Upstream.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	attempts := cfg.Upstream.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &FetchService{
		client:       c,
		logger:       logger.With("component", "fetch_service"),
		metrics:      m,
		maxAttempts:  attempts,
		backoffStep:  time.Duration(cfg.Upstream.BackoffStepMS) * time.Millisecond,
		maxBodyBytes: cfg.Upstream.MaxBodyBytes,
		userAgent:    ua,
		sleep:        sleepContext,
	}
}

// MaxAttempts returns the configured attempt limit.
func (s *FetchService) MaxAttempts() int {
	return s.maxAttempts
}

// Fetch retrieves rawURL, making up to MaxAttempts attempts. Attempt n that
// fails is followed by a wait of n times the backoff step, including after the
// final attempt. The first success is returned immediately. When every attempt
// fails, or ctx is canceled during a wait, the error is an *ExhaustedError
// wrapping the last failure.
func (s *FetchService) Fetch(ctx context.Context, rawURL string) (*model.FetchResult, error) {
	attempts := make([]model.Attempt, 0, s.maxAttempts)
	var last error

	for n := 1; n <= s.maxAttempts; n++ {
		a := s.attempt(ctx, rawURL, n)
		attempts = append(attempts, a)

		if a.OK() {
			s.record("success", "ok")
			return a.Result, nil
		}

		last = a.Err
		s.record("failure", "")
		s.logger.Warn("fetch attempt failed",
			"url", RedactURL(rawURL),
			"attempt", n,
			"max_attempts", s.maxAttempts,
			"err", SanitizeError(a.Err),
		)

		if err := s.sleep(ctx, s.backoffStep*time.Duration(n)); err != nil {
			last = fmt.Errorf("backoff after attempt %d: %w", n, err)
			break
		}
	}

	s.record("", "exhausted")
	return nil, &ExhaustedError{URL: rawURL, Attempts: attempts, Last: last}
}

func (s *FetchService) record(attempt, outcome string) {
	if s.metrics == nil {
		return
	}
	if attempt != "" {
		s.metrics.FetchAttempts.WithLabelValues(attempt).Inc()
	}
	if outcome != "" {
		s.metrics.FetchOutcomes.WithLabelValues(outcome).Inc()
	}
}

// attempt performs a single fetch and never returns a partially filled result.
func (s *FetchService) attempt(ctx context.Context, rawURL string, n int) model.Attempt {
	a := model.Attempt{Number: n, Timeout: s.client.Timeout()}

	header, err := s.buildHeaders(rawURL)
	if err != nil {
		a.Err = err
		return a
	}

	resp, err := s.client.Get(ctx, rawURL, header)
	if err != nil {
		a.Err = err
		return a
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.Err = fmt.Errorf("%w: %d %s", ErrUpstreamStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
		return a
	}

	body, err := s.readBody(resp.Body)
	if err != nil {
		a.Err = err
		return a
	}

	a.Result = &model.FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	return a
}

// readBody buffers the whole body, enforcing maxBodyBytes when it is set.
func (s *FetchService) readBody(r io.Reader) ([]byte, error) {
	if s.maxBodyBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > s.maxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, s.maxBodyBytes)
	}
	return body, nil
}

// buildHeaders returns the browser-like header set sent with every attempt.
func (s *FetchService) buildHeaders(rawURL string) (http.Header, error) {
	referer, err := refererFor(rawURL)
	if err != nil {
		return nil, err
	}

	h := make(http.Header)
	h.Set("User-Agent", s.userAgent)
	h.Set("Accept", acceptHeader)
	h.Set("Accept-Language", acceptLanguageHeader)
	h.Set("Referer", referer)
	h.Set("Connection", "close")
	return h, nil
}

// refererFor derives "<scheme>://<host>/" from the target URL.
func refererFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}

// TargetFromQuery returns the first non-empty "url" value, falling back to
// the first non-empty "target" value. Blank values are ignored.
func TargetFromQuery(q url.Values) (string, error) {
	for _, key := range []string{"url", "target"} {
		for _, v := range q[key] {
			if v != "" {
				return v, nil
			}
		}
	}
	return "", ErrMissingURL
}

// userinfoPattern matches the password part of credentials embedded in URLs.
var userinfoPattern = regexp.MustCompile(`(://[^/@\s:"]+:)[^/@\s"]+@`)

// SanitizeError redacts URL passwords from error messages before they are logged.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return RedactURL(err.Error())
}

// RedactURL hides any password embedded in s.
func RedactURL(s string) string {
	return userinfoPattern.ReplaceAllString(s, "${1}[REDACTED]@")
}
