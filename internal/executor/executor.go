// Package executor hosts connector runs for the HTTP layer: it looks the
// connector up in the catalog, serves repeated requests from the response
// cache, collapses identical concurrent requests, caps concurrent runs and
// commits origin cache writes only for successful runs.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/connectorgw/internal/cache"
	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/fetch"
	"github.com/JonMunkholm/connectorgw/internal/logging"
	"github.com/JonMunkholm/connectorgw/internal/metrics"
	"github.com/JonMunkholm/connectorgw/internal/pipeline"
)

// Options wires an Executor. Origin and Response may be nil to disable the
// corresponding cache.
type Options struct {
	Catalog *connector.Catalog
	Runner  *pipeline.Runner

	// Origin must be the cache the runner's fetch.Cached writes through.
	Origin      cache.Cache
	OriginTTL   time.Duration
	Response    cache.Cache
	ResponseTTL time.Duration

	Limiter *core.RunLimiter
	Metrics *metrics.Collector
}

// Executor runs connectors by name.
type Executor struct {
	catalog     *connector.Catalog
	runner      *pipeline.Runner
	origin      cache.Cache
	originTTL   time.Duration
	response    cache.Cache
	responseTTL time.Duration
	limiter     *core.RunLimiter
	metrics     *metrics.Collector

	group singleflight.Group
}

// New validates opts and returns an Executor.
func New(opts Options) (*Executor, error) {
	if opts.Catalog == nil {
		return nil, errors.New("executor: catalog is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("executor: runner is required")
	}
	if opts.Limiter == nil {
		opts.Limiter = core.NewRunLimiter(0, 0)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Executor{
		catalog:     opts.Catalog,
		runner:      opts.Runner,
		origin:      opts.Origin,
		originTTL:   opts.OriginTTL,
		response:    opts.Response,
		responseTTL: opts.ResponseTTL,
		limiter:     opts.Limiter,
		metrics:     opts.Metrics,
	}, nil
}

// Catalog returns the connectors the executor serves.
func (e *Executor) Catalog() *connector.Catalog {
	return e.catalog
}

// Limiter returns the run limiter, for draining on shutdown.
func (e *Executor) Limiter() *core.RunLimiter {
	return e.limiter
}

// GetEndpointData runs the named connector with inbound params.
//
// Pipeline outcomes, successful or not, are reported in the envelope. The
// error is non-nil only when no run took place: the connector is unknown
// (connector.ErrConnectorNotFound), no run slot freed up in time
// (core.ErrTooManyRuns) or ctx ended while waiting for one.
func (e *Executor) GetEndpointData(ctx context.Context, name string, params map[string]string) (pipeline.Envelope, error) {
	spec, err := e.catalog.Get(name)
	if err != nil {
		return pipeline.Envelope{}, err
	}

	key := responseKey(name, params)
	if e.response != nil {
		data, err := e.response.Get(ctx, key)
		switch {
		case err == nil:
			e.metrics.CacheHit(metrics.CacheResponse)
			return pipeline.Envelope{Status: pipeline.StatusOK, Data: data}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			logging.FromContext(ctx).Warn("response cache lookup failed", "connector", name, "error", err)
		}
		e.metrics.CacheMiss(metrics.CacheResponse)
	}

	// The run outlives a caller that goes away so collapsed callers still
	// get a result; the connector timeout bounds it.
	runCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		return e.run(runCtx, spec, key, params)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return pipeline.Envelope{}, res.Err
		}
		return res.Val.(pipeline.Envelope), nil
	case <-ctx.Done():
		return pipeline.Envelope{}, ctx.Err()
	}
}

func (e *Executor) run(ctx context.Context, spec *connector.Spec, key string, params map[string]string) (pipeline.Envelope, error) {
	name := spec.Name()
	if err := e.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			e.metrics.RunRejected(name)
			logging.FromContext(ctx).Warn("connector run rejected", "connector", name, "active", e.limiter.ActiveCount())
		}
		return pipeline.Envelope{}, err
	}
	defer e.limiter.Release()

	ctx, logger := logging.WithRun(ctx, uuid.NewString(), name)
	stage := fetch.NewStage()
	ctx = fetch.WithStage(ctx, stage)

	start := time.Now()
	logger.Debug("connector run started", "params", len(params))
	env := e.runner.Run(ctx, spec, params)
	elapsed := time.Since(start)

	if env.OK() {
		e.commit(ctx, stage, key, env)
		logger.Info("connector run finished", "status", env.Status, "bytes", len(env.Data), "duration_ms", elapsed.Milliseconds())
	} else {
		if n := stage.Discard(); n > 0 {
			e.metrics.OriginDiscarded(n)
		}
		logger.Warn("connector run failed", "status", env.Status, "message", env.Message, "duration_ms", elapsed.Milliseconds())
	}
	e.metrics.RunFinished(name, env.Status, elapsed)
	return env, nil
}

// commit publishes the side effects of a successful run.
func (e *Executor) commit(ctx context.Context, stage *fetch.Stage, key string, env pipeline.Envelope) {
	logger := logging.FromContext(ctx)
	if e.origin != nil {
		n, err := stage.Commit(ctx, e.origin, e.originTTL)
		if err != nil {
			logger.Warn("origin cache commit failed", "written", n, "error", err)
		}
		if n > 0 {
			e.metrics.CacheStored(metrics.CacheOrigin, n)
		}
	} else {
		stage.Discard()
	}

	if e.response != nil {
		if err := e.response.Set(ctx, key, env.Data, e.responseTTL); err != nil {
			logger.Warn("response cache write failed", "error", err)
			return
		}
		e.metrics.CacheStored(metrics.CacheResponse, 1)
	}
}

// ClearOriginCache empties the origin cache and reports how many entries
// were removed.
func (e *Executor) ClearOriginCache(ctx context.Context) (int, error) {
	return e.clear(ctx, e.origin, metrics.CacheOrigin)
}

// ClearResponseCache empties the response cache and reports how many
// entries were removed.
func (e *Executor) ClearResponseCache(ctx context.Context) (int, error) {
	return e.clear(ctx, e.response, metrics.CacheResponse)
}

func (e *Executor) clear(ctx context.Context, c cache.Cache, name string) (int, error) {
	if c == nil {
		return 0, nil
	}
	n, err := c.Clear(ctx)
	if err != nil {
		return n, fmt.Errorf("clear %s: %w", name, err)
	}
	e.metrics.CacheCleared(name)
	logging.FromContext(ctx).Info("cache cleared", "cache", name, "entries", n)
	return n, nil
}

// Stats returns the counters snapshot extended with run limiter state and
// cache sizes.
func (e *Executor) Stats() metrics.Snapshot {
	snap := e.metrics.Snapshot()

	st := e.limiter.Status()
	snap["runs"] = map[string]int64{
		"active":         int64(st.Active),
		"available":      int64(st.Available),
		"max_concurrent": int64(st.MaxConcurrent),
	}
	if e.origin != nil {
		snap[metrics.CacheOrigin]["size"] = e.origin.Stats().Size
	}
	if e.response != nil {
		snap[metrics.CacheResponse]["size"] = e.response.Stats().Size
	}
	return snap
}

// responseKey identifies a connector run by name and inbound params.
func responseKey(name string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, 1+2*len(keys))
	parts = append(parts, name)
	for _, k := range keys {
		parts = append(parts, k, params[k])
	}
	return cache.Key(parts...)
}
