package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	"github.com/JonMunkholm/connectorgw/internal/fetch"
	"github.com/JonMunkholm/connectorgw/internal/logging"
)

// DefaultTimeout bounds a run whose connector declares no timeout.
const DefaultTimeout = 60 * time.Second

// Runner interprets connector documents.
type Runner struct {
	Registry *core.Registry
	Fetcher  fetch.Fetcher

	// Now returns the reference time of a run. It is read once per run.
	Now func() time.Time

	DefaultTimeout time.Duration
}

// New returns a runner over reg and f with a wall clock.
func New(reg *core.Registry, f fetch.Fetcher) *Runner {
	return &Runner{Registry: reg, Fetcher: f, Now: time.Now, DefaultTimeout: DefaultTimeout}
}

// Run executes spec with inbound params and returns its envelope.
func (r *Runner) Run(ctx context.Context, spec *connector.Spec, params map[string]string) Envelope {
	exports, err := r.Execute(ctx, spec, params)
	if err != nil {
		return Failure(err)
	}
	env, err := Success(exports)
	if err != nil {
		return Failure(err)
	}
	return env
}

// Execute runs spec and returns its projected exports in declaration order.
// Errors are classified *core.Error values or wrap context errors.
func (r *Runner) Execute(ctx context.Context, spec *connector.Spec, params map[string]string) (exports connector.Ordered[core.Projection], err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.FromContext(ctx).Error("panic during connector run", "panic", p)
			err = core.Errorf(core.KindInternal, "run", "panic: %v", p)
		}
	}()

	reg := r.Registry
	if reg == nil {
		reg = core.Default
	}
	if spec == nil {
		return exports, core.SpecInvalid("spec", "connector is nil")
	}

	calls, unused := spec.Bind(params)
	if len(unused) > 0 {
		logging.FromContext(ctx).Debug("inbound parameters match no argument", "params", unused)
	}
	if err := connector.Validate(spec, reg); err != nil {
		return exports, err
	}

	fallback := r.DefaultTimeout
	if fallback <= 0 {
		fallback = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout(fallback))
	defer cancel()

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	bodies, err := r.fetchAll(runCtx, spec, calls)
	if err != nil {
		return exports, err
	}
	if err := runCtx.Err(); err != nil {
		return exports, timeoutOr(err, "fetch")
	}

	datasets, err := extract(spec, bodies)
	if err != nil {
		return exports, err
	}

	call := core.Call{Now: now}
	out := spec.Spec.Output
	for _, name := range out.Exports.Keys() {
		if err := runCtx.Err(); err != nil {
			return exports, timeoutOr(err, "export "+name)
		}
		ex, _ := out.Exports.Get(name)
		dsName, _ := spec.ResolveDataset(name, ex)
		source, _ := datasets.Get(dsName)

		var p core.Projection
		if spec.ExecutionMode() == connector.ExecIsolated {
			p, err = runIsolated(runCtx, reg, call, name, source, ex)
		} else {
			p, err = runShared(runCtx, reg, call, name, source, ex)
		}
		if err != nil {
			return exports, err
		}
		exports.Set(name, p)
	}
	return exports, nil
}

// fetchAll fetches every call concurrently. The first failure cancels the
// others.
func (r *Runner) fetchAll(ctx context.Context, spec *connector.Spec, calls connector.Ordered[connector.APICall]) (map[string][]byte, error) {
	if r.Fetcher == nil {
		return nil, core.Errorf(core.KindInternal, "fetch", "no fetcher configured")
	}

	names := calls.Keys()
	bodies := make([][]byte, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		call, _ := calls.Get(name)
		req := fetch.Request{
			Connector: spec.Name(),
			Name:      name,
			Call:      call,
			BaseURL:   spec.BaseURL(),
		}
		g.Go(func() error {
			body, err := r.Fetcher.Fetch(gctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return timeoutOr(ctx.Err(), "api call "+name)
				}
				return core.UpstreamFetch("api call "+name, err)
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(names))
	for i, name := range names {
		out[name] = bodies[i]
	}
	return out, nil
}

// extract builds one table per declared dataset. A response that does not
// decode, or whose selected value has no row shape, is an upstream failure.
func extract(spec *connector.Spec, bodies map[string][]byte) (connector.Ordered[core.Table], error) {
	var tables connector.Ordered[core.Table]
	decoded := make(map[string]any, len(bodies))

	data := spec.Spec.Output.Data
	for _, name := range data.Keys() {
		ds, _ := data.Get(name)
		op := "dataset " + name

		doc, ok := decoded[ds.API]
		if !ok {
			var err error
			doc, err = fetch.Decode(bodies[ds.API])
			if err != nil {
				return tables, core.UpstreamFetch(op, fmt.Errorf("api call %s: %w", ds.API, err))
			}
			decoded[ds.API] = doc
		}

		path, err := connector.ParsePath(ds.Path)
		if err != nil {
			return tables, core.SpecInvalid(op, "%v", err)
		}
		selected, err := path.Select(doc)
		if err != nil {
			return tables, core.UpstreamFetch(op, err)
		}
		rows, err := connector.Rows(selected)
		if err != nil {
			return tables, core.UpstreamFetch(op, err)
		}
		tables.Set(name, core.NewTable(rows))
	}
	return tables, nil
}

// runChain threads t through every step of chain.
func runChain(ctx context.Context, reg *core.Registry, call core.Call, op string, t core.Table, chain connector.Chain) (core.Table, error) {
	for i, step := range chain {
		if err := ctx.Err(); err != nil {
			return core.Table{}, timeoutOr(err, op)
		}
		stepOp := fmt.Sprintf("%s step %d (%s)", op, i, step.Function)

		tool, err := reg.Resolve(step.Function)
		if err != nil {
			return core.Table{}, locate(err, stepOp)
		}
		params, err := tool.Bind(step.Params)
		if err != nil {
			return core.Table{}, locate(err, stepOp)
		}
		t, err = tool.Apply(call, t, params)
		if err != nil {
			return core.Table{}, locate(err, stepOp)
		}
	}
	return t, nil
}

// runShared threads one table through the field chains in declaration order
// and projects the final table.
func runShared(ctx context.Context, reg *core.Registry, call core.Call, export string, source core.Table, ex connector.Export) (core.Projection, error) {
	t := source
	fields := ex.Fields.Keys()
	for _, field := range fields {
		chain, _ := ex.Fields.Get(field)
		var err error
		t, err = runChain(ctx, reg, call, "export "+export+"/"+field, t, chain)
		if err != nil {
			return core.Projection{}, err
		}
	}
	return t.Project("export "+export, fields)
}

// runIsolated runs every field chain on the untouched source table. A source
// row survives when it survives every chain; a field takes its value from
// its own chain's output, or from the source row when the chain did not
// produce that column.
func runIsolated(ctx context.Context, reg *core.Registry, call core.Call, export string, source core.Table, ex connector.Export) (core.Projection, error) {
	fields := ex.Fields.Keys()
	outputs := make([]core.Table, len(fields))
	index := make([]map[int]int, len(fields))
	for i, field := range fields {
		chain, _ := ex.Fields.Get(field)
		out, err := runChain(ctx, reg, call, "export "+export+"/"+field, source, chain)
		if err != nil {
			return core.Projection{}, err
		}
		outputs[i] = out
		index[i] = out.IndexByKey()
	}

	for i, field := range fields {
		if !outputs[i].HasColumn(field) && !source.HasColumn(field) {
			return core.Projection{}, core.MissingColumn("export "+export+"/"+field, field)
		}
	}

	p := core.Projection{Fields: fields}
rows:
	for r := 0; r < source.Len(); r++ {
		key := source.Key(r)
		vals := make([]any, len(fields))
		for i, field := range fields {
			at, ok := index[i][key]
			if !ok {
				continue rows
			}
			if outputs[i].HasColumn(field) {
				vals[i], _ = outputs[i].Value(at, field)
			} else {
				vals[i], _ = source.Value(r, field)
			}
		}
		p.Rows = append(p.Rows, vals)
	}
	return p, nil
}

// locate prefixes a classified error with where it happened.
func locate(err error, op string) error {
	var e *core.Error
	if !errors.As(err, &e) {
		return core.Wrap(core.KindInternal, op, err)
	}
	cp := *e
	if cp.Op != "" {
		cp.Op = op + ": " + cp.Op
	} else {
		cp.Op = op
	}
	return &cp
}

// timeoutOr classifies a context error: deadline expiry is a timeout,
// cancellation is returned as is.
func timeoutOr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{Kind: core.KindTimeout, Op: op, Message: "run timed out", Err: err}
	}
	return err
}
