package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdg-insight/server/internal/agent/graph/observers"
	"github.com/sdg-insight/server/internal/agent/model"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// Collaborator runs one analysis function with translated arguments.
type Collaborator interface {
	Call(ctx context.Context, function string, args map[string]any) (model.Result, error)
}

// ResultCache stores successful results by key.
type ResultCache interface {
	Get(ctx context.Context, key string) (model.Result, bool, error)
	Set(ctx context.Context, key string, r model.Result) error
}

// Call is one tool invocation requested by the model.
type Call struct {
	Name string
	Args map[string]any
}

// Dispatcher maps tool calls onto collaborator calls through the catalog.
type Dispatcher struct {
	catalog     *Catalog
	backend     Collaborator
	cache       ResultCache
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCache enables read-through caching of successful results.
func WithCache(c ResultCache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithConcurrency bounds how many sibling calls run at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = n }
}

func NewDispatcher(catalog *Catalog, backend Collaborator, opts ...Option) *Dispatcher {
	d := &Dispatcher{catalog: catalog, backend: backend, concurrency: 4}
	for _, opt := range opts {
		opt(d)
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	return d
}

// Catalog returns the registry the dispatcher serves.
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// Execute runs one function. It never returns an error: unknown functions,
// bad arguments and collaborator failures all come back as error-shaped results.
func (d *Dispatcher) Execute(ctx context.Context, name string, raw map[string]any, in model.QueryIntent) (res model.Result) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("function", name).Interface("panic", r).Msg("Analysis function panicked")
			res = model.Failure(model.ErrCollaborator, "Error executing %s: %v", name, r)
		}
		if res.Failed() && outcome == "ok" {
			outcome = "error"
		}
		observers.ObserveToolCall(name, outcome, time.Since(start))
	}()

	fn, ok := d.catalog.Lookup(name)
	if !ok {
		outcome = "unknown"
		logx.Warn().Str("function", name).Msg("Unknown function requested")
		return model.Failure(model.ErrUnknownFunction, "Unknown function: %s", name)
	}

	args, err := fn.Translate(raw, in)
	if err != nil {
		logx.Warn().Err(err).Str("function", name).Msg("Rejected tool arguments")
		return model.Failure(model.ErrCollaborator, "Invalid arguments for %s: %v", name, err)
	}

	key := cacheKey(name, args)
	if cached, hit := d.lookup(ctx, key); hit {
		outcome = "cached"
		return cached
	}

	logx.Debug().Str("function", name).Interface("arguments", args).Msg("Calling analysis function")
	res, err = d.backend.Call(ctx, name, args)
	if err != nil {
		logx.Error().Err(err).Str("function", name).Msg("Analysis function failed")
		return model.Failure(model.ErrCollaborator, "Error executing %s: %v", name, err)
	}
	if res.Failed() {
		if res.ErrKind == "" {
			res.ErrKind = model.ErrCollaborator
		}
		return res
	}

	d.store(ctx, key, res)
	return res
}

// ExecuteAll runs sibling calls concurrently. Results keep the order of calls.
func (d *Dispatcher) ExecuteAll(ctx context.Context, calls []Call, in model.QueryIntent) []model.Result {
	results := make([]model.Result, len(calls))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, c := range calls {
		g.Go(func() error {
			results[i] = d.Execute(ctx, c.Name, c.Args, in)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) lookup(ctx context.Context, key string) (model.Result, bool) {
	if d.cache == nil {
		return model.Result{}, false
	}
	res, hit, err := d.cache.Get(ctx, key)
	switch {
	case err != nil:
		observers.ObserveCacheLookup("error")
		logx.Warn().Err(err).Str("key", key).Msg("Result cache read failed")
		return model.Result{}, false
	case hit:
		observers.ObserveCacheLookup("hit")
		return res, true
	default:
		observers.ObserveCacheLookup("miss")
		return model.Result{}, false
	}
}

func (d *Dispatcher) store(ctx context.Context, key string, res model.Result) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Set(ctx, key, res); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("Result cache write failed")
	}
}

// cacheKey hashes the translated arguments; map keys marshal sorted, so equal
// arguments give equal keys.
func cacheKey(name string, args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		b = []byte(fmt.Sprint(args))
	}
	sum := sha256.Sum256(b)
	return name + ":" + hex.EncodeToString(sum[:16])
}
