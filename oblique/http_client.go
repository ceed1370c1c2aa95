package oblique

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single project request
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts made before giving up
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoffShift    = 6

	// survey projects with dense tie points run to hundreds of megabytes
	maxProjectBytes = 256 << 20
)

// FetchOption tunes a ProjectFetcher
type FetchOption func(*ProjectFetcher)

// WithTimeout sets the per-request timeout of the default client
func WithTimeout(d time.Duration) FetchOption {
	return func(f *ProjectFetcher) { f.timeout = d }
}

// WithMaxRetries sets how many attempts are made
func WithMaxRetries(n int) FetchOption {
	return func(f *ProjectFetcher) { f.attempts = n }
}

// WithBaseBackoff sets the delay before the second attempt. Each later
// attempt waits twice as long as the one before.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(f *ProjectFetcher) { f.backoff = d }
}

// WithHTTPClient replaces the default client; WithTimeout is then ignored
func WithHTTPClient(client *http.Client) FetchOption {
	return func(f *ProjectFetcher) { f.client = client }
}

// WithBearerToken sends an Authorization header with every request
func WithBearerToken(token string) FetchOption {
	return func(f *ProjectFetcher) { f.token = token }
}

// ProjectFetcher downloads project documents from a survey API
type ProjectFetcher struct {
	client   *http.Client
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	token    string
}

// NewProjectFetcher returns a fetcher with the default retry policy
func NewProjectFetcher(opts ...FetchOption) *ProjectFetcher {
	f := &ProjectFetcher{
		timeout:  DefaultFetchTimeout,
		attempts: DefaultMaxRetries,
		backoff:  defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.attempts < 1 {
		f.attempts = 1
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// statusError is a non-200 answer from the API
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.url, e.code)
}

// retryable reports whether another attempt could succeed. Client errors
// other than 408 and 429 will not change on retry.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	if se.code == http.StatusRequestTimeout || se.code == http.StatusTooManyRequests {
		return true
	}
	return se.code < 400 || se.code >= 500
}

// retryDelay is the wait before the given attempt (attempt 0 never waits)
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	shift := min(attempt-1, maxBackoffShift)
	return base << shift
}

// Fetch downloads and parses the project at apiURL. Transport failures and
// server errors are retried; a document that does not parse is not.
func (f *ProjectFetcher) Fetch(ctx context.Context, apiURL string) (*Project, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch project: API URL is empty")
	}
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("fetch project: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch project: unsupported URL scheme %q", u.Scheme)
	}

	var lastErr error
	for attempt := 0; attempt < f.attempts; attempt++ {
		if wait := retryDelay(f.backoff, attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("fetch project: %w", ctx.Err())
			case <-timer.C:
			}
		}

		body, err := f.get(ctx, u.String())
		if err != nil {
			lastErr = err
			if !retryable(err) {
				return nil, fmt.Errorf("fetch project: %w", err)
			}
			continue
		}

		p, err := ParseProjectJSON(body)
		if err != nil {
			return nil, fmt.Errorf("fetch project: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("fetch project: all %d attempts failed: %w", f.attempts, lastErr)
}

func (f *ProjectFetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{url: target, code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProjectBytes))
	if err != nil {
		return nil, fmt.Errorf("reading project from %s: %w", target, err)
	}
	return data, nil
}

// FetchProjectFromAPI is a one-shot Fetch with the given options
func FetchProjectFromAPI(ctx context.Context, apiURL string, opts ...FetchOption) (*Project, error) {
	return NewProjectFetcher(opts...).Fetch(ctx, apiURL)
}
