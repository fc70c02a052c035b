package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/connectorgw/internal/cache"
	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	_ "github.com/JonMunkholm/connectorgw/internal/core/tools"
	"github.com/JonMunkholm/connectorgw/internal/fetch"
	"github.com/JonMunkholm/connectorgw/internal/metrics"
	"github.com/JonMunkholm/connectorgw/internal/pipeline"
)

const personsBody = `[
	{"person_id": 1, "year_of_birth": 1950, "month_of_birth": 3, "day_of_birth": 15},
	{"person_id": 2, "year_of_birth": 2010, "month_of_birth": 7, "day_of_birth": 1}
]`

type fixture struct {
	exec     *Executor
	origin   *cache.Memory
	response cache.Cache
	metrics  *metrics.Collector
	calls    *int32
}

type fixtureOpts struct {
	body     string
	fetcher  fetch.Fetcher
	response cache.Cache
	limiter  *core.RunLimiter
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()

	catalog, err := connector.LoadCatalog(core.Default, "", true)
	require.NoError(t, err)

	calls := new(int32)
	upstream := o.fetcher
	if upstream == nil {
		body := o.body
		if body == "" {
			body = personsBody
		}
		upstream = fetch.Func(func(ctx context.Context, req fetch.Request) ([]byte, error) {
			atomic.AddInt32(calls, 1)
			return []byte(body), nil
		})
	}

	m := metrics.New()
	origin := cache.NewMemory("test-origin", 0, time.Minute)
	response := o.response
	if response == nil {
		response = cache.NewMemory("test-response", 0, time.Minute)
	}

	runner := pipeline.New(core.Default, fetch.NewCached(upstream, origin, time.Minute, metrics.CacheOrigin, m))
	runner.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	exec, err := New(Options{
		Catalog:     catalog,
		Runner:      runner,
		Origin:      origin,
		OriginTTL:   time.Minute,
		Response:    response,
		ResponseTTL: time.Minute,
		Limiter:     o.limiter,
		Metrics:     m,
	})
	require.NoError(t, err)

	return &fixture{exec: exec, origin: origin, response: response, metrics: m, calls: calls}
}

func TestGetEndpointData_PersonsAbove60(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	env, err := f.exec.GetEndpointData(context.Background(), "persons_above_60", nil)
	require.NoError(t, err)
	require.True(t, env.OK(), env.Message)
	assert.JSONEq(t, `[{"person_ID": 1, "person_age": 74}]`, string(env.Data))

	stats := f.exec.Stats()
	assert.Equal(t, int64(1), stats["requests"]["ok"])
	assert.Equal(t, int64(1), stats[metrics.CacheOrigin]["stores"])
	assert.Equal(t, int64(1), stats[metrics.CacheResponse]["stores"])
	assert.Equal(t, int64(1), stats[metrics.CacheOrigin]["size"])
}

func TestGetEndpointData_ResponseCacheHit(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	first, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)
	second, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)

	assert.Equal(t, string(first.Data), string(second.Data))
	assert.Equal(t, int32(1), atomic.LoadInt32(f.calls))

	stats := f.exec.Stats()
	assert.Equal(t, int64(1), stats[metrics.CacheResponse]["hits"])
	assert.Equal(t, int64(1), stats[metrics.CacheResponse]["misses"])
	assert.Equal(t, int64(1), stats["requests"]["total"], "cached responses are not runs")
}

func TestGetEndpointData_OriginCacheAfterResponseClean(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	_, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)

	n, err := f.exec.ClearResponseCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	env, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)
	assert.True(t, env.OK())
	assert.Equal(t, int32(1), atomic.LoadInt32(f.calls), "second run is served by the origin cache")

	stats := f.exec.Stats()
	assert.Equal(t, int64(1), stats[metrics.CacheOrigin]["hits"])
	assert.Equal(t, int64(1), stats[metrics.CacheResponse]["clears"])
	assert.Equal(t, int64(2), stats["requests"]["ok"])
}

func TestGetEndpointData_FailureLeavesNoCacheEntries(t *testing.T) {
	// no person_id column, so map_field fails after the fetch succeeded
	f := newFixture(t, fixtureOpts{body: `[{"id": 1, "year_of_birth": 1950, "month_of_birth": 1, "day_of_birth": 1}]`})

	env, err := f.exec.GetEndpointData(context.Background(), "persons_above_60", nil)
	require.NoError(t, err)
	assert.Equal(t, string(core.KindMissingColumn), env.Status)
	assert.Empty(t, env.Data)

	assert.Equal(t, int64(0), f.origin.Stats().Size)
	assert.Equal(t, int64(0), f.response.Stats().Size)

	stats := f.exec.Stats()
	assert.Equal(t, int64(1), stats["requests"]["failed"])
	assert.Equal(t, int64(1), stats[metrics.CacheOrigin]["discarded"])
	assert.Equal(t, int64(0), stats[metrics.CacheOrigin]["stores"])
}

func TestGetEndpointData_UnknownConnector(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.exec.GetEndpointData(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, connector.ErrConnectorNotFound)
}

func TestGetEndpointData_RejectedWhenBusy(t *testing.T) {
	limiter := core.NewRunLimiter(1, 10*time.Millisecond)
	require.True(t, limiter.TryAcquire())
	defer limiter.Release()

	f := newFixture(t, fixtureOpts{limiter: limiter})
	_, err := f.exec.GetEndpointData(context.Background(), "persons_above_60", nil)
	assert.ErrorIs(t, err, core.ErrTooManyRuns)
	assert.Equal(t, int64(1), f.exec.Stats()["requests"]["rejected"])
	assert.Equal(t, int32(0), atomic.LoadInt32(f.calls))
}

func TestGetEndpointData_CollapsesConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	upstream := fetch.Func(func(ctx context.Context, req fetch.Request) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte(personsBody), nil
	})
	f := newFixture(t, fixtureOpts{fetcher: upstream})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]pipeline.Envelope, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, err := f.exec.GetEndpointData(context.Background(), "persons_above_60", nil)
			assert.NoError(t, err)
			results[i] = env
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, env := range results {
		assert.True(t, env.OK())
	}
}

func TestGetEndpointData_CallerCancelDoesNotAbortRun(t *testing.T) {
	release := make(chan struct{})
	upstream := fetch.Func(func(ctx context.Context, req fetch.Request) ([]byte, error) {
		<-release
		return []byte(personsBody), nil
	})
	f := newFixture(t, fixtureOpts{fetcher: upstream})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return f.exec.Stats()["requests"]["ok"] == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), f.response.Stats().Size)
}

func TestGetEndpointData_RedisResponseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedis(cache.Options{Name: "response", RedisURL: "redis://" + mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	defer rc.Close()

	f := newFixture(t, fixtureOpts{response: rc})
	ctx := context.Background()

	_, err = f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)
	env, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"person_ID": 1, "person_age": 74}]`, string(env.Data))
	assert.Equal(t, int32(1), atomic.LoadInt32(f.calls))

	n, err := f.exec.ClearResponseCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClearOriginCache(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	_, err := f.exec.GetEndpointData(ctx, "persons_above_60", nil)
	require.NoError(t, err)

	n, err := f.exec.ClearOriginCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), f.origin.Stats().Size)
	assert.Equal(t, int64(1), f.exec.Stats()[metrics.CacheOrigin]["clears"])
}

func TestResponseKey(t *testing.T) {
	a := responseKey("c", map[string]string{"x": "1", "y": "2"})
	b := responseKey("c", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, responseKey("c", map[string]string{"x": "2", "y": "1"}))
	assert.NotEqual(t, a, responseKey("d", map[string]string{"x": "1", "y": "2"}))
}

func TestNew_RequiresCatalogAndRunner(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
