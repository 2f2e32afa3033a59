package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
	ErrNotFound     = errors.New("remote resource not found")
	ErrServerError  = errors.New("remote server error")
	ErrInvalidProxy = errors.New("invalid proxy URL")
)

// Default timeouts for catalog fetches.
const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultMaxRetries     = 3
)

// TransportOptions configures NewTransport.
type TransportOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Proxy          string // empty uses the environment
}

// NewTransport builds the base transport shared by catalog fetches and
// downloads. ReadTimeout bounds the wait for response headers; body reads
// are bounded by the request context instead.
func NewTransport(opts TransportOptions) (*http.Transport, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	proxy := http.ProxyFromEnvironment
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, opts.Proxy)
		}
		proxy = http.ProxyURL(proxyURL)
	}

	return &http.Transport{
		Proxy:                 proxy,
		DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
	}, nil
}

// Client fetches small documents (catalog listings and descriptors) relative
// to a base URL.
type Client struct {
	BaseURL    string
	HttpClient *http.Client
	MaxRetries int

	retryDelay func(attempt int) time.Duration
}

// NewClient creates a new fetch client. A nil httpClient gets a client
// with the default transport and a read timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultReadTimeout}
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	log.Debugf("NewClient called for %s (API logging handled by transport if enabled)", baseURL)
	return &Client{
		BaseURL:    baseURL,
		HttpClient: httpClient,
		MaxRetries: DefaultMaxRetries,
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 2 * time.Second
		},
	}
}

// Resolve returns the absolute URL for a path relative to BaseURL.
func (c *Client) Resolve(path string) string {
	return c.BaseURL + strings.TrimPrefix(path, "/")
}

// Get fetches path and returns the body. Server errors and transport
// failures are retried; 404 and other client errors are not.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.Resolve(path)
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt - 1)
			log.WithError(lastErr).Warnf("Retrying %s (%d/%d) after %s...", reqURL, attempt+1, maxRetries, delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, retry, err := c.doGet(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, reqURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: creating request for %s: %w", ErrHttpRequest, reqURL, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %w", ErrHttpRequest, reqURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, reqURL)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("%w: %s returned %d", ErrServerError, reqURL, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: %s returned %d", ErrHttpStatus, reqURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: reading body of %s: %w", ErrHttpRequest, reqURL, err)
	}
	return body, false, nil
}
