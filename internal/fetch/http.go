package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/logging"
)

// HTTPConfig configures the HTTP fetcher.
//
// Zero values are given defaults:
//   - Timeout:          30s
//   - InitialBackoff:   200ms
//   - MaxBackoff:       5s
//   - BreakerThreshold: 5
//   - BreakerTimeout:   30s
//   - MaxBodyBytes:     64 MiB
type HTTPConfig struct {
	// Timeout is the per-attempt timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	MaxRetries int

	// InitialBackoff doubles on every retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// BreakerThreshold is the number of requests after which a failure
	// ratio of 50% or more opens a server's breaker.
	BreakerThreshold int

	// BreakerTimeout is how long an open breaker rejects calls.
	BreakerTimeout time.Duration

	MaxBodyBytes int64

	// BaseHeaders are added to every request; bound header arguments win.
	BaseHeaders http.Header

	// Transport is an optional custom RoundTripper.
	Transport http.RoundTripper
}

// HTTP fetches url-type calls.
type HTTP struct {
	client           *http.Client
	maxRetries       int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	maxBody          int64
	baseHeaders      http.Header
	breakerThreshold uint32
	breakerTimeout   time.Duration
	observer         Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	// sleep replaces the backoff timer when set; tests use it to skip waits.
	sleep func(time.Duration)
}

// NewHTTP builds an HTTP fetcher. obs may be nil.
func NewHTTP(cfg HTTPConfig, obs Observer) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if obs == nil {
		obs = nopObserver{}
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	return &HTTP{
		client:           &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries:       cfg.MaxRetries,
		initialBackoff:   cfg.InitialBackoff,
		maxBackoff:       cfg.MaxBackoff,
		maxBody:          cfg.MaxBodyBytes,
		baseHeaders:      cfg.BaseHeaders.Clone(),
		breakerThreshold: uint32(min(cfg.BreakerThreshold, 1<<31)),
		breakerTimeout:   cfg.BreakerTimeout,
		observer:         obs,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
	}
}

// StatusError is a non-2xx upstream response that was not retried away.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.URL, e.Code)
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, req Request) ([]byte, error) {
	start := time.Now()
	body, err := h.fetch(ctx, req)
	h.observer.UpstreamCall(req.Name, time.Since(start), err)
	return body, err
}

func (h *HTTP) fetch(ctx context.Context, req Request) ([]byte, error) {
	out, err := BuildHTTPRequest(req)
	if err != nil {
		return nil, err
	}

	cb := h.breaker(out.Server)
	res, err := cb.Execute(func() (interface{}, error) {
		return h.do(ctx, req.Name, out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", out.Server, err)
		}
		return nil, err
	}
	return res.([]byte), nil
}

// breaker returns the circuit breaker for an upstream server, creating it
// on first use.
func (h *HTTP) breaker(server string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cb, ok := h.breakers[server]; ok {
		return cb
	}
	threshold := h.breakerThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        server,
		MaxRequests: 1,
		Interval:    h.breakerTimeout,
		Timeout:     h.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			// client errors and cancellations say nothing about upstream health
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && se.Code != http.StatusTooManyRequests
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("upstream circuit breaker state change", "server", name, "from", from.String(), "to", to.String())
			h.observer.BreakerStateChange(name, from.String(), to.String())
		},
	})
	h.breakers[server] = cb
	return cb
}

// BreakerStates reports the state of every known upstream breaker.
func (h *HTTP) BreakerStates() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]string, len(h.breakers))
	for name, cb := range h.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// do sends the request, retrying transport errors, 5xx and 429 with
// exponential backoff.
func (h *HTTP) do(ctx context.Context, call string, out *OutgoingRequest) ([]byte, error) {
	logger := logging.FromContext(ctx)
	attempts := h.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, bytes.NewReader(out.Body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range h.baseHeaders {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for k, vs := range out.Header {
			req.Header[k] = append([]string(nil), vs...)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := readBody(resp.Body, h.maxBody)
			_ = resp.Body.Close()
			switch {
			case isRetryableStatus(resp.StatusCode):
				lastErr = &StatusError{Method: out.Method, URL: out.URL, Code: resp.StatusCode}
			case resp.StatusCode < 200 || resp.StatusCode > 299:
				return nil, &StatusError{Method: out.Method, URL: out.URL, Code: resp.StatusCode}
			case readErr != nil:
				return nil, fmt.Errorf("read response: %w", readErr)
			default:
				return body, nil
			}
		}

		if ctx.Err() != nil || attempt+1 >= attempts {
			return nil, lastErr
		}

		backoff := backoffDuration(h.initialBackoff, attempt, h.maxBackoff)
		logger.Warn("upstream call failed, retrying",
			"call", call,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", lastErr,
		)
		h.observer.UpstreamRetry(call)
		if err := sleepWithContext(ctx, h.sleep, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// isRetryableStatus treats 5xx and 429 as transient.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns initial * 2^attempt clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial > max {
			return max
		}
		return initial
	}
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepWithContext waits for d, aborting early if ctx is cancelled. A
// non-nil sleep replaces the timer and is called synchronously.
func sleepWithContext(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if sleep != nil {
		sleep(d)
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

// OutgoingRequest is a call rendered for the wire.
type OutgoingRequest struct {
	Method string
	URL    string
	Server string // scheme://host of URL, used as the breaker name
	Header http.Header
	Body   []byte
}

// BuildHTTPRequest renders a bound call: parameter arguments fill {name}
// segments of the endpoint, query arguments become the query string, header
// arguments become headers and body arguments form a JSON object body.
// Arguments with a null value are left out.
func BuildHTTPRequest(req Request) (*OutgoingRequest, error) {
	call := req.Call
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodGet
	}

	endpoint := call.Endpoint
	query := url.Values{}
	header := http.Header{}
	var body map[string]any

	for _, arg := range call.Arguments {
		if arg.Value == nil {
			continue
		}
		switch arg.Location {
		case connector.ArgParameter:
			endpoint = strings.ReplaceAll(endpoint, "{"+arg.Name+"}", url.PathEscape(core.Stringify(arg.Value)))
		case connector.ArgQuery:
			query.Set(arg.Name, core.Stringify(arg.Value))
		case connector.ArgHeader:
			header.Set(arg.Name, core.Stringify(arg.Value))
		case connector.ArgBody:
			if body == nil {
				body = make(map[string]any)
			}
			body[arg.Name] = arg.Value
		default:
			return nil, fmt.Errorf("argument %s: unknown argLocation %q", arg.Name, arg.Location)
		}
	}
	if strings.Contains(endpoint, "{") {
		return nil, fmt.Errorf("endpoint %q has unbound path parameters", endpoint)
	}

	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if req.BaseURL == "" {
			return nil, fmt.Errorf("call %s: no server url", req.Name)
		}
		raw = strings.TrimRight(req.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("call %s: invalid url: %w", req.Name, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}

	out := &OutgoingRequest{
		Method: method,
		URL:    u.String(),
		Server: u.Scheme + "://" + u.Host,
		Header: header,
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		out.Body = b
		out.Header.Set("Content-Type", "application/json")
	}
	out.Header.Set("Accept", "application/json")
	return out, nil
}
