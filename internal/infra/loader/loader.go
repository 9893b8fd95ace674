// Package loader computes which tools should be visible for a request,
// partitioned into essential (by usage), relevant (by ranked search) and
// an on-demand remainder reachable only by direct name lookup.
package loader

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/query"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/usage"
)

type Options struct {
	EssentialCap      int
	RelevantCap       int
	FallbackThreshold int
	SearchEnabled     bool
}

func (o Options) withDefaults() Options {
	if o.EssentialCap <= 0 {
		o.EssentialCap = domain.DefaultEssentialCap
	}
	if o.RelevantCap <= 0 {
		o.RelevantCap = domain.DefaultRelevantCap
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = domain.DefaultFallbackThreshold
	}
	return o
}

type Loader struct {
	catalog *catalog.Catalog
	tracker *usage.Tracker
	metrics domain.Metrics
	logger  *zap.Logger

	mu   sync.RWMutex
	opts Options
}

func New(cat *catalog.Catalog, tracker *usage.Tracker, opts Options, logger *zap.Logger, metrics domain.Metrics) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		catalog: cat,
		tracker: tracker,
		metrics: metrics,
		logger:  logger.Named("loader"),
		opts:    opts.withDefaults(),
	}
}

// UpdateOptions swaps the tunables. Used by config hot-reload; in-flight
// loads keep the snapshot they started with.
func (l *Loader) UpdateOptions(opts Options) {
	l.mu.Lock()
	l.opts = opts.withDefaults()
	l.mu.Unlock()
}

func (l *Loader) options() Options {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts
}

// Load answers "which tools should be visible right now". Essential and
// relevant are always disjoint and the catalog remainder stays invocable
// by exact name.
func (l *Loader) Load(ctx context.Context, queryText string) (domain.LoadingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.LoadingResult{}, err
	}
	start := time.Now()
	opts := l.options()

	essential := l.essentialTier(opts.EssentialCap)
	inEssential := make(map[string]struct{}, len(essential))
	for _, d := range essential {
		inEssential[d.Name] = struct{}{}
	}

	var (
		relevant []domain.ToolDescriptor
		strategy domain.LoadStrategy
	)

	switch {
	case queryText == "" || !opts.SearchEnabled:
		total := l.catalog.Len()
		if total <= opts.FallbackThreshold {
			strategy = domain.StrategyFallbackFull
			for _, d := range l.catalog.All() {
				if _, ok := inEssential[d.Name]; ok {
					continue
				}
				relevant = append(relevant, d)
			}
		} else {
			strategy = domain.StrategyUsageOnly
		}
	default:
		strategy = domain.StrategyBM25
		pq := query.Process(queryText)

		searchStart := time.Now()
		hits, err := l.catalog.Search(pq.Enhanced, opts.RelevantCap)
		if err != nil {
			return domain.LoadingResult{}, domain.Wrap(domain.CodeInternal, "loader.Load", err)
		}
		if l.metrics != nil {
			l.metrics.ObserveSearch(time.Since(searchStart), len(hits))
		}

		for _, hit := range hits {
			if _, ok := inEssential[hit.Name]; ok {
				continue
			}
			if d, ok := l.catalog.Get(hit.Name); ok {
				relevant = append(relevant, d)
			}
		}
		l.logger.Debug("query processed",
			zap.String("intent", string(pq.Intent)),
			zap.Int("tokens", len(pq.Tokens)),
			zap.Int("hits", len(hits)),
		)
	}

	onDemand := l.catalog.Len() - len(essential) - len(relevant)
	if onDemand < 0 {
		onDemand = 0
	}

	if l.metrics != nil {
		l.metrics.ObserveLoad(strategy)
	}
	result := domain.LoadingResult{
		Essential: essential,
		Relevant:  relevant,
		OnDemand:  onDemand,
		Strategy:  strategy,
		Elapsed:   time.Since(start),
	}
	l.logger.Debug("tools loaded",
		telemetry.StrategyField(string(strategy)),
		zap.Int("essential", len(essential)),
		zap.Int("relevant", len(relevant)),
		zap.Int("onDemand", onDemand),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// essentialTier maps the top usage counters back to live descriptors.
// Tools deregistered between the usage snapshot and the catalog lookup
// simply drop out.
func (l *Loader) essentialTier(limit int) []domain.ToolDescriptor {
	tops := l.tracker.TopByUsage(limit)
	out := make([]domain.ToolDescriptor, 0, len(tops))
	for _, snap := range tops {
		if d, ok := l.catalog.Get(snap.Name); ok {
			out = append(out, d)
		}
	}
	return out
}
