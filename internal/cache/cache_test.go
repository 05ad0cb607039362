package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/source"
)

func measurement(station string, precip float64) domain.Measurement {
	return domain.Measurement{
		StationID: station,
		Timestamp: time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC),
		Values:    map[domain.Attribute]float64{domain.AttrPrecipitation: precip},
	}
}

func TestStore_EmptyThenFreshThenStale(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(5*time.Minute, clock)
	key := Key{Category: domain.CategoryMeteo, StationID: "meteo-somgande"}

	_, err := s.Get(key)
	require.ErrorIs(t, err, ErrNoData)

	s.Put(domain.CategoryMeteo, measurement("meteo-somgande", 34.2), domain.SourceInfo{Name: "wigos"})

	e, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFresh, e.State)
	assert.Equal(t, "wigos", e.Source.Name)

	clock.Advance(5*time.Minute + time.Second)

	e, err = s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, domain.StateStale, e.State)
	assert.InDelta(t, 34.2, e.Measurement.Values[domain.AttrPrecipitation], 1e-9,
		"stale values are retained, not evicted")
	assert.Greater(t, e.Age, 5*time.Minute)
}

func TestStore_PutResetsStaleness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(time.Minute, clock)
	key := Key{Category: domain.CategoryHydro, StationID: "hydro-wayen"}

	s.Put(domain.CategoryHydro, measurement("hydro-wayen", 0), domain.SourceInfo{Name: "fanfar"})
	clock.Advance(2 * time.Minute)

	e, _ := s.Get(key)
	assert.Equal(t, domain.StateStale, e.State)

	s.Put(domain.CategoryHydro, measurement("hydro-wayen", 0), domain.SourceInfo{Name: "fanfar"})
	e, _ = s.Get(key)
	assert.Equal(t, domain.StateFresh, e.State)
	assert.Equal(t, 0, e.Failures, "successful refresh clears the failure count")
}

func TestStore_MarkFailuresCountsPerCategory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(time.Minute, clock)

	s.Put(domain.CategoryMeteo, measurement("meteo-somgande", 1), domain.SourceInfo{Name: "wigos"})
	s.Put(domain.CategoryHydro, measurement("hydro-wayen", 0), domain.SourceInfo{Name: "fanfar"})

	s.MarkFailures(domain.CategoryHydro)
	s.MarkFailures(domain.CategoryHydro)

	hydro, _ := s.Get(Key{Category: domain.CategoryHydro, StationID: "hydro-wayen"})
	meteo, _ := s.Get(Key{Category: domain.CategoryMeteo, StationID: "meteo-somgande"})
	assert.Equal(t, 2, hydro.Failures)
	assert.Equal(t, 0, meteo.Failures)
}

func TestStore_PutCopiesValues(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(time.Minute, clock)

	m := measurement("meteo-somgande", 10)
	s.Put(domain.CategoryMeteo, m, domain.SourceInfo{Name: "wigos"})
	m.Values[domain.AttrPrecipitation] = 999

	e, _ := s.Get(Key{Category: domain.CategoryMeteo, StationID: "meteo-somgande"})
	assert.InDelta(t, 10.0, e.Measurement.Values[domain.AttrPrecipitation], 1e-9)
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(time.Minute, clock)
	s.Put(domain.CategoryMeteo, measurement("meteo-somgande", 1), domain.SourceInfo{Name: "wigos"})

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := s.Snapshot()
				for _, e := range snap {
					// A reader must never observe a half-written entry.
					assert.NotEmpty(t, e.Source.Name)
					assert.NotEmpty(t, e.Measurement.StationID)
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		s.Put(domain.CategoryMeteo, measurement("meteo-somgande", float64(i)), domain.SourceInfo{Name: "wigos"})
	}
	close(done)
	wg.Wait()
}

// --- refresher ---

type recordingArchive struct {
	mu    sync.Mutex
	saved []domain.Measurement
	err   error
}

func (a *recordingArchive) SaveMeasurements(_ context.Context, _ domain.Category, ms []domain.Measurement, _ domain.SourceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, ms...)
	return a.err
}

type fixedFetcher struct {
	name string
	ms   []domain.Measurement
	err  error
}

func (f *fixedFetcher) Name() string { return f.name }
func (f *fixedFetcher) Fetch(context.Context) ([]domain.Measurement, error) {
	return f.ms, f.err
}

func newRefresherHarness(t *testing.T, meteo, hydro source.Fetcher) (*Store, *Refresher, *recordingArchive) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetricsForTesting()
	mgr := source.NewManager(time.Second, logger, metrics)
	mgr.Register(domain.CategoryMeteo, meteo)
	mgr.Register(domain.CategoryHydro, hydro)

	store := New(5*time.Minute, clockwork.NewFakeClock())
	archive := &recordingArchive{}
	return store, NewRefresher(store, mgr, archive, time.Minute, logger, metrics), archive
}

func TestRefresher_PopulatesStoreAndArchive(t *testing.T) {
	store, r, archive := newRefresherHarness(t,
		&fixedFetcher{name: "wigos", ms: []domain.Measurement{measurement("meteo-somgande", 34.2)}},
		&fixedFetcher{name: "fanfar", ms: []domain.Measurement{measurement("hydro-wayen", 0)}},
	)

	r.RefreshAll(context.Background())

	_, err := store.Get(Key{Category: domain.CategoryMeteo, StationID: "meteo-somgande"})
	require.NoError(t, err)
	_, err = store.Get(Key{Category: domain.CategoryHydro, StationID: "hydro-wayen"})
	require.NoError(t, err)
	assert.Len(t, archive.saved, 2)
}

func TestRefresher_FailureRetainsPreviousValues(t *testing.T) {
	meteo := &fixedFetcher{name: "wigos", ms: []domain.Measurement{measurement("meteo-somgande", 34.2)}}
	hydro := &fixedFetcher{name: "fanfar", ms: []domain.Measurement{measurement("hydro-wayen", 0)}}
	store, r, _ := newRefresherHarness(t, meteo, hydro)

	r.RefreshAll(context.Background())

	hydro.ms, hydro.err = nil, errors.New("fanfar down")
	r.RefreshAll(context.Background())

	e, err := store.Get(Key{Category: domain.CategoryHydro, StationID: "hydro-wayen"})
	require.NoError(t, err, "previous hydro value survives the failed refresh")
	assert.Equal(t, 1, e.Failures)
}

func TestRefresher_CategoriesAreIndependent(t *testing.T) {
	meteo := &fixedFetcher{name: "wigos", err: errors.New("both meteo sources down")}
	hydro := &fixedFetcher{name: "fanfar", ms: []domain.Measurement{measurement("hydro-wayen", 0)}}
	store, r, _ := newRefresherHarness(t, meteo, hydro)

	r.RefreshAll(context.Background())

	_, err := store.Get(Key{Category: domain.CategoryHydro, StationID: "hydro-wayen"})
	require.NoError(t, err, "hydro refresh proceeds despite meteo failure")
	_, err = store.Get(Key{Category: domain.CategoryMeteo, StationID: "meteo-somgande"})
	assert.ErrorIs(t, err, ErrNoData)
}
