// Package lda reads lobbying filings from the Senate LDA REST API.
package lda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

const (
	// DefaultBaseURL is the public filings endpoint.
	DefaultBaseURL = "https://lda.senate.gov/api/v1/filings/"
	// DefaultOrdering asks for newest postings first; early stop depends on it.
	DefaultOrdering = "-posted_at"

	maxBodyBytes = 32 << 20
)

// Config controls how the client talks to the filings API.
type Config struct {
	BaseURL    string
	APIKey     string
	UserAgent  string
	Ordering   string
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	EarlyStop  bool
	MaxPages   int
}

// Client fetches filing pages. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger logrus.FieldLogger
}

// Option customises the client.
type Option func(*Client)

// WithLogger overrides the default logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient validates cfg and fills defaults. A nil httpClient gets a 20s page timeout.
func NewClient(cfg Config, httpClient *http.Client, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("lda base url: %w", err)
	}
	if cfg.Ordering == "" {
		cfg.Ordering = DefaultOrdering
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "lda-filing-bot/1.0"
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(20 * time.Second)
	}
	c := &Client{cfg: cfg, http: httpClient, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type page struct {
	Results []domain.RawFiling `json:"results"`
	Next    *string            `json:"next"`
}

// statusError carries a non-2xx response status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("lda status %d", e.code)
	}
	return fmt.Sprintf("lda status %d: %s", e.code, e.body)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// firstPageURL builds the query for one period.
func (c *Client) firstPageURL(q Query) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	v := u.Query()
	v.Set("filing_year", fmt.Sprint(q.Year))
	v.Set("filing_period", string(q.Period))
	v.Set("ordering", c.cfg.Ordering)
	if name := strings.TrimSpace(q.ClientName); name != "" {
		v.Set("client_name", name)
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

// withKey adds api_key to next links the server hands back without it.
func (c *Client) withKey(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if c.cfg.APIKey == "" {
		return u.String(), nil
	}
	v := u.Query()
	if v.Get("api_key") == "" {
		v.Set("api_key", c.cfg.APIKey)
		u.RawQuery = v.Encode()
	}
	return u.String(), nil
}

// getPage reads one page with bounded retries. end reports a clean 404 past the first page.
func (c *Client) getPage(ctx context.Context, pageURL string, first bool) (p page, end bool, err error) {
	target, err := c.withKey(pageURL)
	if err != nil {
		return page{}, false, fmt.Errorf("page url: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if c.cfg.APIKey != "" {
			req.Header.Set("X-Api-Key", c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.WithError(err).WithField("attempt", attempt).Warn("filings request failed")
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound && !first {
			end = true
			return nil
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			serr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
			if retryableStatus(resp.StatusCode) {
				c.logger.WithField("status", resp.StatusCode).WithField("attempt", attempt).Warn("filings api busy, retrying")
				return serr
			}
			return backoff.Permanent(serr)
		}

		var decoded page
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("decode page: %w", err))
		}
		p = decoded
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Backoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return page{}, false, err
	}
	return p, end, nil
}
