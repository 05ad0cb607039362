package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/source"
)

// Archiver persists refreshed measurements for later inspection. A nil
// Archiver disables archiving.
type Archiver interface {
	SaveMeasurements(ctx context.Context, cat domain.Category, ms []domain.Measurement, src domain.SourceInfo) error
}

// Refresher keeps the store warm: an eager refresh at startup, then a
// scheduled refresh per category. A failed category refresh retains the
// previous values and is retried on the next tick.
type Refresher struct {
	store    *Store
	manager  *source.Manager
	archive  Archiver
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	cron *cron.Cron
}

// NewRefresher wires a refresher over the store and source manager.
func NewRefresher(store *Store, manager *source.Manager, archive Archiver, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		store:    store,
		manager:  manager,
		archive:  archive,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start performs the initial refresh synchronously so the store is warm
// before the service accepts traffic, then schedules periodic refreshes.
// The initial refresh is best-effort: a cold start with an unreachable
// source still comes up, serving degraded predictions until data arrives.
func (r *Refresher) Start(ctx context.Context) error {
	r.RefreshAll(ctx)

	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, func() {
		tickCtx, cancel := context.WithTimeout(context.Background(), r.interval)
		defer cancel()
		r.RefreshAll(tickCtx)
	}); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	r.cron.Start()
	r.logger.Info("cache refresher started", "interval", r.interval.String())
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("cache refresher stopped")
}

// RefreshAll refreshes every category. Categories are independent: a
// failure in one never blocks the other.
func (r *Refresher) RefreshAll(ctx context.Context) {
	for _, cat := range []domain.Category{domain.CategoryMeteo, domain.CategoryHydro} {
		r.refreshCategory(ctx, cat)
	}
}

func (r *Refresher) refreshCategory(ctx context.Context, cat domain.Category) {
	start := time.Now()
	ms, src, err := r.manager.Fetch(ctx, cat)
	if err != nil {
		r.metrics.CacheRefresh.WithLabelValues(string(cat), "failure").Inc()
		r.store.MarkFailures(cat)
		r.logger.Warn("refresh failed, keeping previous values",
			"category", cat, "error", err)
		r.updateStaleGauge(cat)
		return
	}

	for _, m := range ms {
		r.store.Put(cat, m, src)
	}
	r.metrics.CacheRefresh.WithLabelValues(string(cat), "success").Inc()
	r.updateStaleGauge(cat)
	r.logger.Info("refreshed category",
		"category", cat,
		"source", src.Name,
		"tier", src.Tier,
		"measurements", len(ms),
		"duration", time.Since(start).String())

	if r.archive != nil {
		if err := r.archive.SaveMeasurements(ctx, cat, ms, src); err != nil {
			r.logger.Warn("archiving measurements failed", "category", cat, "error", err)
		}
	}
}

func (r *Refresher) updateStaleGauge(cat domain.Category) {
	r.metrics.StaleEntries.WithLabelValues(string(cat)).Set(float64(r.store.StaleCount(cat)))
}
