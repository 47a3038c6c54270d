package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elonfeng/toonrank/internal/metrics"
	"golang.org/x/time/rate"
)

// ClientOptions tunes the HTTP behaviour of provider clients.
type ClientOptions struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxTries          uint
	InitialBackoff    time.Duration
}

func (o ClientOptions) withDefaults(baseURL string) ClientOptions {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxTries == 0 {
		o.MaxTries = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	return o
}

// httpClient wraps http.Client with a token bucket and retries on 429/5xx.
type httpClient struct {
	client   *http.Client
	limiter  *rate.Limiter
	provider string
	opts     ClientOptions
}

func newHTTPClient(provider string, opts ClientOptions) *httpClient {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &httpClient{
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		provider: provider,
		opts:     opts,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

// get performs a GET and returns the body of a 200 response.
func (h *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	operation := func() ([]byte, error) {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "toonrank/1.0")

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, &statusError{code: resp.StatusCode}
		case resp.StatusCode >= 500:
			return nil, &statusError{code: resp.StatusCode}
		default:
			return nil, backoff.Permanent(&statusError{code: resp.StatusCode})
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.opts.InitialBackoff
	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(h.opts.MaxTries),
		backoff.WithMaxElapsedTime(2*time.Minute),
	)
	metrics.ObserveProvider(h.provider, err)
	return body, err
}

// getJSON performs a GET and decodes the JSON body into out.
func (h *httpClient) getJSON(ctx context.Context, reqURL string, out any) error {
	body, err := h.get(ctx, reqURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", h.provider, err)
	}
	return nil
}
