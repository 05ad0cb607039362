package source

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
)

// --- stub fetchers ---

type stubFetcher struct {
	name         string
	measurements []domain.Measurement
	err          error
	delay        time.Duration
	calls        int
}

func (f *stubFetcher) Name() string { return f.name }

func (f *stubFetcher) Fetch(ctx context.Context) ([]domain.Measurement, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.measurements, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestManager(timeout time.Duration) *Manager {
	return NewManager(timeout, discardLogger(), observability.NewMetricsForTesting())
}

func sample(station string) []domain.Measurement {
	return []domain.Measurement{{
		StationID: station,
		Timestamp: time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC),
		Values:    map[domain.Attribute]float64{domain.AttrPrecipitation: 12.5},
	}}
}

// --- Manager tests ---

func TestManager_PrimarySucceeds(t *testing.T) {
	m := newTestManager(time.Second)
	primary := &stubFetcher{name: "primary", measurements: sample("s1")}
	fallback := &stubFetcher{name: "fallback", measurements: sample("s1")}
	m.Register(domain.CategoryMeteo, primary)
	m.Register(domain.CategoryMeteo, fallback)

	got, src, err := m.Fetch(context.Background(), domain.CategoryMeteo)
	require.NoError(t, err)
	assert.Equal(t, "primary", src.Name)
	assert.Equal(t, 0, src.Tier)
	assert.Len(t, got, 1)
	assert.Equal(t, 0, fallback.calls, "fallback should not be consulted")
}

func TestManager_FallsBackOnError(t *testing.T) {
	m := newTestManager(time.Second)
	primary := &stubFetcher{name: "primary", err: errors.New("boom")}
	fallback := &stubFetcher{name: "fallback", measurements: sample("s1")}
	m.Register(domain.CategoryMeteo, primary)
	m.Register(domain.CategoryMeteo, fallback)

	got, src, err := m.Fetch(context.Background(), domain.CategoryMeteo)
	require.NoError(t, err)
	assert.Equal(t, "fallback", src.Name)
	assert.Equal(t, 1, src.Tier)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, primary.calls)
}

func TestManager_FallsBackOnTimeout(t *testing.T) {
	m := newTestManager(20 * time.Millisecond)
	slow := &stubFetcher{name: "slow", delay: time.Second, measurements: sample("s1")}
	fast := &stubFetcher{name: "fast", measurements: sample("s1")}
	m.Register(domain.CategoryMeteo, slow)
	m.Register(domain.CategoryMeteo, fast)

	_, src, err := m.Fetch(context.Background(), domain.CategoryMeteo)
	require.NoError(t, err)
	assert.Equal(t, "fast", src.Name)
}

func TestManager_AllSourcesFail(t *testing.T) {
	m := newTestManager(time.Second)
	m.Register(domain.CategoryHydro, &stubFetcher{name: "a", err: errors.New("down")})
	m.Register(domain.CategoryHydro, &stubFetcher{name: "b", err: errors.New("also down")})

	_, _, err := m.Fetch(context.Background(), domain.CategoryHydro)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
}

func TestManager_EmptyChain(t *testing.T) {
	m := newTestManager(time.Second)
	_, _, err := m.Fetch(context.Background(), domain.CategoryHydro)
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
}
