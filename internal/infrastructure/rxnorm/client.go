package rxnorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rxlens/backend/internal/domain"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	baseBackoff        = 500 * time.Millisecond
	maxJitter          = 250 * time.Millisecond
)

// Client talks to the RxNav RxNorm REST service. It owns retries with
// exponential backoff and honors a shared rate limiter across all concurrent
// callers; it carries no matching logic.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *rate.Limiter
	maxAttempts int
	log         *zap.Logger

	// Overridable in tests to avoid real sleeps.
	backoff func(attempt int) time.Duration
	sleep   func(d time.Duration)
}

// Config holds client construction options.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// NewClient creates a RxNorm client. The limiter is injected rather than
// package-global so tests can pass an unlimited one; it is the sole state
// shared across concurrent lookups.
func NewClient(cfg Config, limiter *rate.Limiter, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		rateLimiter: limiter,
		maxAttempts: maxAttempts,
		log:         log,
		backoff:     exponentialBackoff,
		sleep:       time.Sleep,
	}
}

// LookupByNdc resolves an NDC to its active RxNorm concept via the ndcstatus
// endpoint. A successful response with no active concept returns an empty
// slice and a nil error; that is the normal unmatched signal.
func (c *Client) LookupByNdc(ctx context.Context, ndc domain.NormalizedNdc) ([]domain.RxNormCandidate, error) {
	if !ndc.Valid {
		return nil, nil
	}

	params := url.Values{}
	params.Add("ndc", ndc.Digits())
	reqURL := fmt.Sprintf("%s/ndcstatus.json?%s", c.baseURL, params.Encode())

	var resp ndcStatusResponse
	if err := c.getJSON(ctx, "ndc lookup", reqURL, &resp); err != nil {
		return nil, err
	}
	return resp.candidates(ndc), nil
}

// LookupByName searches RxNorm concepts by drug name via the drugs endpoint.
func (c *Client) LookupByName(ctx context.Context, name string) ([]domain.RxNormCandidate, error) {
	params := url.Values{}
	params.Add("name", name)
	reqURL := fmt.Sprintf("%s/drugs.json?%s", c.baseURL, params.Encode())

	var resp drugSearchResponse
	if err := c.getJSON(ctx, "name lookup", reqURL, &resp); err != nil {
		return nil, err
	}
	return resp.candidates(), nil
}

// getJSON executes a GET with the retry policy as an explicit attempt loop.
// Timeouts, 5xx and 429 count as transient and retry up to the ceiling;
// other 4xx and undecodable bodies fail permanently without retry.
func (c *Client) getJSON(ctx context.Context, op, reqURL string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.sleep(c.backoff(attempt-1) + jitter())
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return &domain.TransientError{Op: op, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return &domain.PermanentError{Op: op, Err: err}
		}
		req.Header.Set("User-Agent", "rxlens/1.0")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("rxnorm request failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return &domain.PermanentError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.log.Warn("rxnorm transient status",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode))
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue

		default:
			return &domain.PermanentError{
				Op:     op,
				Status: resp.StatusCode,
				Err:    errors.New(http.StatusText(resp.StatusCode)),
			}
		}
	}

	return &domain.TransientError{Op: op, Err: lastErr}
}

// exponentialBackoff doubles the base delay per completed attempt.
func exponentialBackoff(attempt int) time.Duration {
	return baseBackoff << (attempt - 1)
}

func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(maxJitter)))
}
