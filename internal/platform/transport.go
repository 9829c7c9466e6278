package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/wolfman30/sameday-sync/pkg/logging"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 250 * time.Millisecond
	maxErrorBody      = 300
)

// APIError is a protocol-level rejection from a platform API.
type APIError struct {
	Platform   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Platform, e.StatusCode, e.Body)
}

// IsRetryable reports whether a request outcome should be retried: network
// failures, 429 and 5xx are retried, other statuses are not.
func IsRetryable(status int, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			var netErr net.Error
			return errors.As(err, &netErr) && netErr.Timeout()
		}
		return true
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

// TransportOptions tunes adapter HTTP calls.
type TransportOptions struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	// HTTPClient overrides the base client (tests).
	HTTPClient *http.Client
}

// Transport performs authorized platform HTTP calls with a timeout and bounded
// exponential-backoff retries.
type Transport struct {
	platform   string
	base       *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// NewTransport builds a Transport for one platform.
func NewTransport(platform string, opts TransportOptions, logger *logging.Logger) *Transport {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: opts.Timeout}
	}
	return &Transport{
		platform:   platform,
		base:       base,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     logger,
	}
}

// Client returns an http.Client that attaches the connection's access token as
// a bearer credential.
func (t *Transport) Client(ctx context.Context, conn Connection) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: conn.AccessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = t.base.Timeout
	return client
}

// Send issues method against url with the connection's credentials and returns
// the response body of a 2xx reply. Non-2xx replies surface as *APIError.
func (t *Transport) Send(ctx context.Context, conn Connection, method, url string, body []byte, header http.Header) ([]byte, error) {
	client := t.Client(ctx, conn)
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("%s: build request: %w", t.platform, err)
		}
		for k, vals := range header {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !IsRetryable(0, err) || attempt == t.maxRetries {
				return nil, fmt.Errorf("%s: http error: %w", t.platform, err)
			}
			lastErr = err
			t.logRetry(req.URL.Path, attempt, 0, err)
			if sleepErr := t.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%s: read response: %w", t.platform, readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := t.decodeAPIError(resp.StatusCode, data)
		if attempt < t.maxRetries && IsRetryable(resp.StatusCode, nil) {
			lastErr = apiErr
			t.logRetry(req.URL.Path, attempt, resp.StatusCode, apiErr)
			if sleepErr := t.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s: request failed without response", t.platform)
}

func (t *Transport) decodeAPIError(status int, body []byte) *APIError {
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &APIError{Platform: t.platform, StatusCode: status, Body: msg}
}

func (t *Transport) sleep(ctx context.Context, attempt int) error {
	delay := t.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) logRetry(path string, attempt int, status int, err error) {
	t.logger.Warn("platform request retry",
		"platform", t.platform,
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}
