package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client wraps http.Client with timeouts, a redirect cap, and limited retry
// on transient errors. Extractors share one client per credentials policy:
// the default client carries no cookies, so page-triggered fetches never
// leak session state into extraction; a WithCookies client is used only
// where a service requires authenticated requests (e.g. caption payloads).
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// WithCookies attaches a cookie jar so redirects within a login flow
	// keep their session. Off by default.
	WithCookies bool
	// RedirectMaxHops caps redirect following. Zero means default (5).
	RedirectMaxHops int

	// internal jar initialized on first use when WithCookies is set; one
	// client is shared across extraction goroutines.
	jar     http.CookieJar
	jarOnce sync.Once
}

// Response is the body plus the headers extraction cares about.
type Response struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Get issues a GET with context, user-agent, and bounded retry for
// transient errors. Content-type gating is the caller's decision.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.tryOnce(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown fetch error")
	}
	return nil, lastErr
}

func (c *Client) tryOnce(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	httpClient := c.getHTTPClient()
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
		return nil, fmt.Errorf("server error: %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		Body:        b,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
	}, nil
}

func (c *Client) getHTTPClient() *http.Client {
	var base http.Client
	if c.HTTPClient != nil {
		// Clone to attach the redirect policy without mutating the
		// caller's client.
		base = *c.HTTPClient
	} else {
		base = http.Client{Timeout: c.PerRequestTimeout}
	}
	base.CheckRedirect = c.checkRedirectFunc()
	if c.WithCookies {
		c.jarOnce.Do(func() {
			c.jar, _ = cookiejar.New(nil)
		})
		base.Jar = c.jar
	} else {
		base.Jar = nil
	}
	return &base
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return strings.Contains(err.Error(), "server error:")
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// IsHTMLContentType reports whether the response looks like an HTML page.
func IsHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// IsPDFContentType reports whether the response looks like a PDF document.
func IsPDFContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "application/pdf") || strings.HasPrefix(ct, "application/x-pdf")
}
