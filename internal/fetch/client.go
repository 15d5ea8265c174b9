// Package fetch implements the rate-limited, retrying HTTP client used by
// source adapters. Requests run through a gocolly collector; non-2xx answers
// surface as StatusError and only transport failures are retried.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/tulashvilimindia/batumi.work/internal/metrics"
	"github.com/tulashvilimindia/batumi.work/internal/policy/ratelimit"
)

const defaultUserAgent = "batumi-work-crawler/1.0 (+https://batumi.work)"

// Config controls client behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Delay          time.Duration
	Jitter         time.Duration
	Timeout        time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	Proxies        []string
}

// Response is a successful fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client fetches pages for one crawl session. It is safe for concurrent
// use, but spacing is enforced across all callers of the same instance.
type Client struct {
	cfg       Config
	base      *colly.Collector
	transport *http.Transport
	limiter   *ratelimit.Limiter
	retry     *RetryPolicy
	proxies   *ProxyRotator
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	closed    atomic.Bool
}

type proxyKey struct{}

// New builds a Client. Callers must Close it; Session does so for them.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := newHTTPTransport()
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.ParseHTTPErrorResponse = true
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{
		cfg:       cfg,
		base:      c,
		transport: transport,
		limiter:   ratelimit.New(ratelimit.Config{Delay: cfg.Delay, Jitter: cfg.Jitter}),
		retry:     NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
		proxies:   NewProxyRotator(cfg.Proxies),
		logger:    logger,
		sleep:     sleepContext,
	}
}

// Session runs fn with a fresh Client and releases its connections when fn
// returns.
func Session(cfg Config, logger *zap.Logger, fn func(*Client) error) error {
	client := New(cfg, logger)
	defer client.Close()
	return fn(client)
}

// Close releases pooled connections. Further calls fail with ErrClosed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.transport.CloseIdleConnections()
}

// Get fetches rawURL with params merged into its query string.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	target, err := withParams(rawURL, params)
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		if err := c.limiter.Wait(ctx, target); err != nil {
			return nil, err
		}
		proxy, _ := c.proxies.Next()
		resp, err := c.do(ctx, target, proxy)
		if err == nil {
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
			}
			return resp, nil
		}
		if proxy != "" {
			c.proxies.MarkFailed(proxy)
		}
		if !c.retry.ShouldRetry(ctx, err, attempt) {
			return nil, fmt.Errorf("fetch %s after %d attempt(s): %w", target, attempt, err)
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		metrics.ObserveFetchRetry(target)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("fetch %s backoff: %w", target, err)
		}
	}
}

// GetText fetches rawURL and returns the body as a string.
func (c *Client) GetText(ctx context.Context, rawURL string, params url.Values) (string, error) {
	resp, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// GetJSON fetches rawURL and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	resp, err := c.Get(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", resp.URL, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, target, proxy string) (*Response, error) {
	collector := c.base.Clone()
	reqCtx := ctx
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		reqCtx = context.WithValue(ctx, proxyKey{}, proxyURL)
	}
	collector.Context = reqCtx

	var (
		result   *Response
		fetchErr error
	)
	start := time.Now()
	collector.OnRequest(func(r *colly.Request) {
		if c.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", c.cfg.AcceptLanguage)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		result = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		status := 0
		if result != nil {
			status = result.StatusCode
		}
		metrics.ObserveFetch(target, status, time.Since(start))
		if err != nil {
			return nil, err
		}
		if fetchErr != nil {
			return nil, fetchErr
		}
		if result == nil {
			return nil, fmt.Errorf("fetch %s: no response", target)
		}
		return result, nil
	}
}

func withParams(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	q := u.Query()
	for key, values := range params {
		q.Del(key)
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func proxyFromContext(req *http.Request) (*url.URL, error) {
	if p, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return p, nil
	}
	return http.ProxyFromEnvironment(req)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: proxyFromContext,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
