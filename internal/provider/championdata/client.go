// Package championdata fetches match-centre documents from Champion Data and
// flattens them into provider tables.
//
// All three per-match tables (box score, period stats, score flow) come from
// the same /{league}/{match}.json document; the fixture list and the
// competition catalogue are separate documents.
package championdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public match-centre data root.
const DefaultBaseURL = "https://mc.championdata.com/data"

var errServerStatus = errors.New("champion data server error")

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	RequestsPerMinute int // 0 disables pacing
	Timeout           time.Duration
	BreakerFailures   int
	BreakerOpen       time.Duration
	HTTPClient        *http.Client
}

// Client is the shared HTTP client for all Champion Data documents.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a paced, circuit-broken client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}

	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	openFor := opts.BreakerOpen
	if openFor <= 0 {
		openFor = time.Minute
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		limiter:    limiter,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "championdata",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// getDocument fetches path and decodes it as a JSON object. A non-200
// answer is logged and reported as ok=false with no error. Transport and
// decode failures, and an open breaker, are errors.
func (c *Client) getDocument(ctx context.Context, path string) (map[string]interface{}, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, errors.Wrap(err, "rate limit wait")
	}

	type response struct {
		status int
		body   []byte
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, errors.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errors.Wrapf(err, "http request %s", path)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "read response body")
		}
		r := response{status: resp.StatusCode, body: body}
		if resp.StatusCode >= 500 {
			return r, errors.Mark(errors.Newf("%s returned %d", path, resp.StatusCode), errServerStatus)
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, errServerStatus) {
			c.logger.Warn("Champion Data server error, treating as no data", "path", path, "error", err)
			return nil, false, nil
		}
		return nil, false, err
	}

	r := out.(response)
	if r.status != http.StatusOK {
		c.logger.Warn("Champion Data returned non-200, treating as no data",
			"path", path, "status", r.status, "body", truncate(r.body, 200))
		return nil, false, nil
	}

	var doc map[string]interface{}
	if err := sonic.Unmarshal(r.body, &doc); err != nil {
		return nil, false, errors.Wrapf(err, "decode %s", path)
	}
	return doc, true, nil
}

func matchPath(leagueID, matchID string) string {
	return fmt.Sprintf("/%s/%s.json", leagueID, matchID)
}

// truncate returns a truncated string representation for log messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
