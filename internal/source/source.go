// Package source fetches measurements from upstream weather and hydrology
// providers, walking a fixed fallback chain per category.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
)

// ErrAllSourcesUnavailable is returned when every source in a category's
// fallback chain has failed. A single source failing is handled internally
// and never surfaced.
var ErrAllSourcesUnavailable = errors.New("all sources unavailable")

// Fetcher is one upstream provider, normalized to domain measurements.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.Measurement, error)
}

// Manager tries a category's sources in priority order. It performs the
// network call and nothing else: writing results to the cache is the
// caller's job, which keeps fetch and storage independently testable.
type Manager struct {
	chains  map[domain.Category][]Fetcher
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a Manager with the given per-attempt timeout.
func NewManager(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		chains:  make(map[domain.Category][]Fetcher),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Register appends a fetcher to a category's fallback chain. Registration
// order is priority order: the first registered source is the primary.
func (m *Manager) Register(cat domain.Category, f Fetcher) {
	m.chains[cat] = append(m.chains[cat], f)
}

// Fetch tries the category's sources in order, each attempt bounded by the
// configured timeout. The returned SourceInfo records which source answered
// and at which tier, for confidence scoring downstream.
func (m *Manager) Fetch(ctx context.Context, cat domain.Category) ([]domain.Measurement, domain.SourceInfo, error) {
	chain := m.chains[cat]
	if len(chain) == 0 {
		return nil, domain.SourceInfo{}, fmt.Errorf("category %s: %w", cat, ErrAllSourcesUnavailable)
	}

	for tier, f := range chain {
		attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
		measurements, err := f.Fetch(attemptCtx)
		cancel()

		if err != nil {
			outcome := "error"
			if errors.Is(err, context.DeadlineExceeded) {
				outcome = "timeout"
			}
			m.metrics.FetchAttempts.WithLabelValues(string(cat), f.Name(), outcome).Inc()
			m.logger.Warn("source failed, trying next",
				"category", cat,
				"source", f.Name(),
				"tier", tier,
				"error", err,
			)
			continue
		}

		m.metrics.FetchAttempts.WithLabelValues(string(cat), f.Name(), "success").Inc()
		return measurements, domain.SourceInfo{Name: f.Name(), Tier: tier}, nil
	}

	return nil, domain.SourceInfo{}, fmt.Errorf("category %s: %w", cat, ErrAllSourcesUnavailable)
}
