// Package fetch performs the remote calls a connector declares and returns
// their raw JSON payloads.
//
// HTTP calls go through a retrying client guarded by a circuit breaker per
// upstream server; SQL calls run against a pgx pool. Cached wraps either
// with the origin cache, staging writes until the run that made them has
// succeeded.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/connectorgw/internal/connector"
)

// Request is one bound api call.
type Request struct {
	Connector string
	Name      string            // api call name
	Call      connector.APICall // arguments already bound
	BaseURL   string
}

// Type returns the normalized call type.
func (r Request) Type() string {
	if r.Call.Type == "" {
		return connector.CallURL
	}
	return strings.ToLower(r.Call.Type)
}

// Fetcher returns the raw response body of a call.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Func adapts a function to Fetcher.
type Func func(ctx context.Context, req Request) ([]byte, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// Observer receives upstream activity. metrics.Collector implements it.
type Observer interface {
	UpstreamCall(call string, d time.Duration, err error)
	UpstreamRetry(call string)
	BreakerStateChange(server, from, to string)
}

type nopObserver struct{}

func (nopObserver) UpstreamCall(string, time.Duration, error) {}
func (nopObserver) UpstreamRetry(string)                      {}
func (nopObserver) BreakerStateChange(string, string, string) {}

// Router dispatches a request on its call type.
type Router struct {
	URL Fetcher
	SQL Fetcher // nil when no database is configured
}

// Fetch implements Fetcher.
func (r Router) Fetch(ctx context.Context, req Request) ([]byte, error) {
	switch req.Type() {
	case connector.CallURL:
		if r.URL == nil {
			return nil, fmt.Errorf("no url fetcher configured")
		}
		return r.URL.Fetch(ctx, req)
	case connector.CallSQL:
		if r.SQL == nil {
			return nil, fmt.Errorf("call %s: sql calls need DATABASE_URL to be set", req.Name)
		}
		return r.SQL.Fetch(ctx, req)
	default:
		return nil, fmt.Errorf("call %s: unsupported call type %q", req.Name, req.Call.Type)
	}
}
