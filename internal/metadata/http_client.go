package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/auction-indexer/internal/circuitbreaker"
	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/metrics"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// StatusError is returned for a non-200 response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPConfig configures the metadata HTTP client
type HTTPConfig struct {
	Timeout         time.Duration
	MaxRPS          int // 0 disables throttling
	BreakerFailures int
	BreakerCooldown time.Duration
}

// HTTPClient fetches token metadata documents and probes logo URLs. All
// requests share one rate limiter and one circuit breaker; transport errors
// and 5xx responses count against the breaker, 4xx responses do not.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPClient creates a metadata HTTP client
func NewHTTPClient(cfg HTTPConfig, m *metrics.MetadataCache) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.MaxRPS > 0 {
		limit = rate.Limit(cfg.MaxRPS)
		burst = cfg.MaxRPS
	}

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:        "metadata-http",
		MaxFailures: cfg.BreakerFailures,
		Cooldown:    cfg.BreakerCooldown,
	})
	if m != nil {
		breaker.OnStateChange(func(name string, state circuitbreaker.State) {
			m.SetBreakerOpen(name, state != circuitbreaker.StateClosed)
		})
	}

	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}
}

// GetJSON decodes the JSON document at url into dest
func (c *HTTPClient) GetJSON(ctx context.Context, url string, dest interface{}) error {
	body, status, err := c.do(ctx, http.MethodGet, url)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{URL: url, StatusCode: status}
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode metadata from %s: %w", url, err)
	}
	return nil
}

// Exists reports whether a HEAD request to url answers 200
func (c *HTTPClient) Exists(ctx context.Context, url string) (bool, error) {
	_, status, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// BreakerState exposes the breaker for health reporting
func (c *HTTPClient) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}

// Check fails while the breaker is open and metadata hosts are being skipped
func (c *HTTPClient) Check(context.Context) error {
	if c.BreakerState() == circuitbreaker.StateOpen {
		return apperrors.NewServiceUnavailableError("metadata")
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, url string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("metadata rate limiter: %w", err)
	}

	var body []byte
	var status int
	err := c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if method != http.MethodHead && status == http.StatusOK {
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
		}
		if status >= http.StatusInternalServerError {
			return &StatusError{URL: url, StatusCode: status}
		}
		return nil
	})
	if err != nil {
		return nil, status, err
	}
	return body, status, nil
}
