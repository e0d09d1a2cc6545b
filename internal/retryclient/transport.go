// Package retryclient makes server-side rate limiting mostly invisible to
// callers of the gatekeeper API. Transport waits out a 429 from the API
// origin and resends the request, a bounded number of times. Responses from
// any other origin, and any status other than 429, pass through untouched.
//
// A 429 is produced before application logic runs, so resending is safe for
// every method, mutations included.
package retryclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxRetries = 3
	// MaxWait caps any server-requested wait.
	MaxWait = 60 * time.Second
	// DefaultWait is used when a 429 names no wait at all.
	DefaultWait = time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Transport is an http.RoundTripper that retries rate-limited requests to one
// origin.
type Transport struct {
	base       http.RoundTripper
	scheme     string
	host       string
	maxRetries int
	sleep      SleepFunc
	now        func() time.Time
	toast      *Toast
	logger     *slog.Logger
}

type Option func(*Transport)

// WithBase sets the wrapped transport. The default is http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

func WithMaxRetries(n int) Option {
	return func(t *Transport) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(t *Transport) {
		t.sleep = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Transport) {
		t.now = now
	}
}

// WithToast shows toast while a retry is pending. Share one Toast between
// transports so concurrent retries raise a single notification.
func WithToast(toast *Toast) Option {
	return func(t *Transport) {
		t.toast = toast
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New returns a Transport that retries requests addressed to origin, for
// example "https://app.example.com".
func New(origin string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: scheme and host are required", origin)
	}

	t := &Transport{
		base:       http.DefaultTransport,
		scheme:     strings.ToLower(u.Scheme),
		host:       canonicalHost(u),
		maxRetries: DefaultMaxRetries,
		sleep:      sleepContext,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewClient wraps New in an http.Client.
func NewClient(origin string, opts ...Option) (*http.Client, error) {
	t, err := New(origin, opts...)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t}, nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)

	for attempt := 1; ; attempt++ {
		if err != nil || resp.StatusCode != http.StatusTooManyRequests {
			return resp, err
		}
		if attempt > t.maxRetries || !t.sameOrigin(req.URL) {
			return resp, nil
		}

		next, ok := rewind(req)
		if !ok {
			return resp, nil
		}

		wait := t.waitFor(resp.Header)
		discard(resp)

		t.logger.Debug("Rate limited; retrying",
			"url", req.URL.Redacted(),
			"method", req.Method,
			"wait", wait,
			"attempt", attempt,
			"max_retries", t.maxRetries,
		)
		if t.toast != nil {
			t.toast.Show(wait)
		}

		if err := t.sleep(req.Context(), wait); err != nil {
			return nil, err
		}

		resp, err = t.base.RoundTrip(next)
	}
}

func (t *Transport) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, t.scheme) && canonicalHost(u) == t.host
}

// waitFor reads the requested wait from Retry-After (seconds or HTTP date),
// then X-RateLimit-Reset (Unix seconds), else DefaultWait. The result is
// clamped to [0, MaxWait].
func (t *Transport) waitFor(h http.Header) time.Duration {
	wait := DefaultWait

	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			wait = secondsToDuration(secs)
		} else if at, err := http.ParseTime(v); err == nil {
			wait = at.Sub(t.now())
		}
	} else if v := strings.TrimSpace(h.Get("X-RateLimit-Reset")); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			wait = time.Unix(unix, 0).Sub(t.now())
		}
	}

	return clamp(wait)
}

func secondsToDuration(secs int64) time.Duration {
	if secs > int64(MaxWait/time.Second) {
		return MaxWait
	}
	return time.Duration(secs) * time.Second
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxWait {
		return MaxWait
	}
	return d
}

// rewind prepares a copy of req for resending. Requests whose body cannot be
// recreated are not retried.
func rewind(req *http.Request) (*http.Request, bool) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	next.Body = body
	return next, true
}

// discard releases the connection of a response that is being replaced.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	if port == "" {
		return host
	}
	return net.JoinHostPort(host, port)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
