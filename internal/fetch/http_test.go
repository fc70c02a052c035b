package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/connectorgw/internal/connector"
)

func newTestHTTP(cfg HTTPConfig) *HTTP {
	h := NewHTTP(cfg, nil)
	h.sleep = func(time.Duration) {}
	return h
}

func personsRequest(base string, args ...connector.Argument) Request {
	return Request{
		Connector: "persons_above_60",
		Name:      "GetPersonsAll",
		BaseURL:   base,
		Call: connector.APICall{
			Type:      "url",
			Endpoint:  "/persons",
			Method:    "get",
			Arguments: args,
		},
	}
}

func TestHTTP_Fetch_Success(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `[{"person_id":1}]`)
	}))
	defer srv.Close()

	h := newTestHTTP(HTTPConfig{})
	body, err := h.Fetch(context.Background(), personsRequest(srv.URL+"/fdp-medicine-node01/"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"person_id":1}]`, string(body))
	assert.Equal(t, "/fdp-medicine-node01/persons", gotPath)
}

func TestHTTP_Fetch_RetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	h := newTestHTTP(HTTPConfig{MaxRetries: 3})
	body, err := h.Fetch(context.Background(), personsRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHTTP_Fetch_NoRetryOnClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := newTestHTTP(HTTPConfig{MaxRetries: 3})
	_, err := h.Fetch(context.Background(), personsRequest(srv.URL))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHTTP_Fetch_GivesUpAfterRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := newTestHTTP(HTTPConfig{MaxRetries: 2, BreakerThreshold: 100})
	_, err := h.Fetch(context.Background(), personsRequest(srv.URL))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestHTTP_Fetch_BreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := newTestHTTP(HTTPConfig{BreakerThreshold: 2, BreakerTimeout: time.Minute})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := h.Fetch(ctx, personsRequest(srv.URL))
		require.Error(t, err)
	}

	_, err := h.Fetch(ctx, personsRequest(srv.URL))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, "open", h.BreakerStates()[srv.URL])
}

func TestHTTP_Fetch_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := newTestHTTP(HTTPConfig{MaxRetries: 3})
	_, err := h.Fetch(ctx, personsRequest(srv.URL))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestHTTP_Fetch_StripsBOM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(append([]byte{0xEF, 0xBB, 0xBF}, `{"a":1}`...))
	}))
	defer srv.Close()

	body, err := newTestHTTP(HTTPConfig{}).Fetch(context.Background(), personsRequest(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestHTTP_Fetch_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[1,2,3,4,5,6,7,8,9]`)
	}))
	defer srv.Close()

	_, err := newTestHTTP(HTTPConfig{MaxBodyBytes: 4}).Fetch(context.Background(), personsRequest(srv.URL))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestBuildHTTPRequest(t *testing.T) {
	req := Request{
		Name:    "GetRegion",
		BaseURL: "http://upstream.local/api/",
		Call: connector.APICall{
			Endpoint: "/regions/{region}/persons",
			Method:   "post",
			Arguments: []connector.Argument{
				{Name: "region", Location: connector.ArgParameter, Value: "north east"},
				{Name: "limit", Location: connector.ArgQuery, Value: 10},
				{Name: "X-Trace", Location: connector.ArgHeader, Value: "abc"},
				{Name: "filter", Location: connector.ArgBody, Value: "active"},
				{Name: "unset", Location: connector.ArgQuery, Value: nil},
			},
		},
	}

	out, err := BuildHTTPRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "POST", out.Method)
	assert.Equal(t, "http://upstream.local/api/regions/north%20east/persons?limit=10", out.URL)
	assert.Equal(t, "http://upstream.local", out.Server)
	assert.Equal(t, "abc", out.Header.Get("X-Trace"))
	assert.Equal(t, "application/json", out.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"filter":"active"}`, string(out.Body))
}

func TestBuildHTTPRequest_Errors(t *testing.T) {
	_, err := BuildHTTPRequest(Request{Name: "x", Call: connector.APICall{Endpoint: "/p"}})
	assert.Error(t, err, "missing base url")

	_, err = BuildHTTPRequest(Request{Name: "x", BaseURL: "http://u", Call: connector.APICall{Endpoint: "/p/{id}"}})
	assert.Error(t, err, "unbound path parameter")
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDuration(100*time.Millisecond, 0, time.Second))
	assert.Equal(t, 400*time.Millisecond, backoffDuration(100*time.Millisecond, 2, time.Second))
	assert.Equal(t, time.Second, backoffDuration(100*time.Millisecond, 10, time.Second))
}

func TestSleepWithContext_CancelStopsTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := sleepWithContext(ctx, nil, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSleepWithContext_Elapses(t *testing.T) {
	assert.NoError(t, sleepWithContext(context.Background(), nil, time.Millisecond))
	assert.NoError(t, sleepWithContext(context.Background(), nil, 0))

	var slept time.Duration
	fake := func(d time.Duration) { slept = d }
	assert.NoError(t, sleepWithContext(context.Background(), fake, 3*time.Second))
	assert.Equal(t, 3*time.Second, slept)
}
