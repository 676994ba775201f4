package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/hierarchy"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/kpicache"
	"github.com/smukkama/energy-kpi/internal/metrics"
)

// Timeouts bound concurrent generators by cost
type Timeouts struct {
	Light time.Duration
	Heavy time.Duration
}

// DefaultTimeouts are 10s for light generators and 20s for heavy ones
var DefaultTimeouts = Timeouts{Light: 10 * time.Second, Heavy: 20 * time.Second}

// Orchestrator serves cached entity KPIs and building reports
type Orchestrator struct {
	rollup     *hierarchy.Rollup
	cache      kpicache.Cache
	metadata   MetadataProvider
	generators []Generator
	timeouts   Timeouts
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrchestrator creates an orchestrator. A nil cache disables caching.
func NewOrchestrator(rollup *hierarchy.Rollup, cache kpicache.Cache, metadata MetadataProvider, generators []Generator, timeouts Timeouts, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeouts.Light <= 0 {
		timeouts.Light = DefaultTimeouts.Light
	}
	if timeouts.Heavy <= 0 {
		timeouts.Heavy = DefaultTimeouts.Heavy
	}
	return &Orchestrator{
		rollup:     rollup,
		cache:      cache,
		metadata:   metadata,
		generators: generators,
		timeouts:   timeouts,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// GetEntityKPIs returns the KPIs of one entity, served from the cache when
// an identical query was computed within the TTL
func (o *Orchestrator) GetEntityKPIs(ctx context.Context, kind hierarchy.Kind, id string, opts kpi.Options) (kpi.EntityKPI, error) {
	if err := opts.Validate(); err != nil {
		return kpi.EntityKPI{}, err
	}

	key := opts.CacheKey(string(kind), id)
	if k, ok := o.cached(ctx, key); ok {
		return k, nil
	}

	started := time.Now()
	k, err := o.rollup.EntityKPIs(ctx, kind, id, opts)
	if err != nil {
		return kpi.EntityKPI{}, err
	}
	o.metrics.ObserveKPI(string(kind), time.Since(started))
	o.put(ctx, key, k)
	return k, nil
}

// GetEntitiesKPIs returns KPIs for several entities of one kind. Cache
// misses are computed together in a single batched fetch.
func (o *Orchestrator) GetEntitiesKPIs(ctx context.Context, kind hierarchy.Kind, ids []string, opts kpi.Options) (map[string]kpi.EntityKPI, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	out := make(map[string]kpi.EntityKPI, len(ids))
	var missing []string
	for _, id := range ids {
		if k, ok := o.cached(ctx, opts.CacheKey(string(kind), id)); ok {
			out[id] = k
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	started := time.Now()
	computed, err := o.rollup.EntitiesKPIs(ctx, kind, missing, opts)
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveKPI(string(kind), time.Since(started))
	for id, k := range computed {
		out[id] = k
		o.put(ctx, opts.CacheKey(string(kind), id), k)
	}
	return out, nil
}

// GetBuildingAnalytics computes the building's KPIs and every derived
// analytics section. Inline generators run first in order; the rest run
// concurrently, each under its own deadline. A failed or timed-out
// generator only marks its own slot unavailable.
func (o *Orchestrator) GetBuildingAnalytics(ctx context.Context, buildingID string, opts kpi.Options) (*BuildingAnalytics, error) {
	k, err := o.GetEntityKPIs(ctx, hierarchy.KindBuilding, buildingID, opts)
	if err != nil {
		return nil, err
	}
	sensors, err := o.rollup.SensorIDs(ctx, hierarchy.KindBuilding, buildingID)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if o.metadata != nil {
		if meta, err = o.metadata.BuildingMetadata(ctx, buildingID); err != nil {
			return nil, err
		}
	}

	in := Input{
		BuildingID: buildingID,
		Options:    opts,
		KPIs:       k,
		Metadata:   meta,
		Sensors:    sensors,
	}

	results := make(map[string]Result, len(o.generators))
	var concurrent []Generator
	for _, g := range o.generators {
		if g.Cost() != CostInline {
			concurrent = append(concurrent, g)
			continue
		}
		data, err := g.Generate(ctx, in)
		results[g.Name()] = o.outcome(g, data, err)
	}

	type slot struct {
		name   string
		result Result
	}
	done := make(chan slot, len(concurrent))
	var wg sync.WaitGroup
	for _, g := range concurrent {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			done <- slot{name: g.Name(), result: o.runWithTimeout(ctx, g, in)}
		}()
	}
	wg.Wait()
	close(done)
	for s := range done {
		results[s.name] = s.result
	}

	return &BuildingAnalytics{
		BuildingID:  buildingID,
		Start:       opts.Start,
		End:         opts.End,
		KPIs:        k,
		Analytics:   results,
		GeneratedAt: o.now(),
	}, nil
}

// runWithTimeout races the generator against its deadline. On timeout the
// generator keeps running detached and its result is discarded.
func (o *Orchestrator) runWithTimeout(ctx context.Context, g Generator, in Input) Result {
	timeout := o.timeouts.Heavy
	if g.Cost() == CostLight {
		timeout = o.timeouts.Light
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		data, err := g.Generate(gctx, in)
		ch <- outcome{data: data, err: err}
	}()

	select {
	case out := <-ch:
		return o.outcome(g, out.data, out.err)
	case <-gctx.Done():
		o.logger.Warn("Analytics generator timed out",
			zap.String("generator", g.Name()),
			zap.Duration("timeout", timeout),
		)
		o.metrics.GeneratorResult(g.Name(), "timeout")
		return Result{Available: false, Message: g.Name() + " timed out", Timeout: true}
	}
}

func (o *Orchestrator) outcome(g Generator, data any, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		o.metrics.GeneratorResult(g.Name(), "timeout")
		return Result{Available: false, Message: g.Name() + " timed out", Timeout: true}
	}
	if err != nil {
		o.logger.Debug("Analytics generator unavailable",
			zap.String("generator", g.Name()),
			zap.Error(err),
		)
		o.metrics.GeneratorResult(g.Name(), "failed")
		return Result{Available: false, Message: err.Error()}
	}
	o.metrics.GeneratorResult(g.Name(), "ok")
	return Result{Available: true, Data: data}
}

func (o *Orchestrator) cached(ctx context.Context, key string) (kpi.EntityKPI, bool) {
	if o.cache == nil {
		return kpi.EntityKPI{}, false
	}
	k, ok := o.cache.Get(ctx, key)
	if ok {
		o.metrics.CacheHit()
	} else {
		o.metrics.CacheMiss()
	}
	return k, ok
}

func (o *Orchestrator) put(ctx context.Context, key string, k kpi.EntityKPI) {
	if o.cache != nil {
		o.cache.Put(ctx, key, k)
	}
}

// SweepCache drops expired cache entries every interval until ctx is done
func (o *Orchestrator) SweepCache(ctx context.Context, interval time.Duration) {
	if o.cache == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := o.cache.CleanExpired(ctx); removed > 0 {
				o.logger.Debug("Swept expired KPI cache entries", zap.Int("removed", removed))
			}
		}
	}
}
