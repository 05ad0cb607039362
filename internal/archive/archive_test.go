package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

func openTestStore(t *testing.T, clock clockwork.Clock) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "observations.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndHistory(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := openTestStore(t, clock)
	ctx := context.Background()

	measuredAt := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	err := s.SaveMeasurements(ctx, domain.CategoryHydro, []domain.Measurement{
		{
			StationID: "hydro-wayen",
			Timestamp: measuredAt,
			Values: map[domain.Attribute]float64{
				domain.AttrDischarge:  58,
				domain.AttrWaterLevel: 2.9,
			},
		},
	}, domain.SourceInfo{Name: "fanfar", Tier: 0})
	require.NoError(t, err)

	got, err := s.History(ctx, domain.CategoryHydro, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2, "one row per attribute")
	assert.Equal(t, "hydro-wayen", got[0].StationID)
	assert.Equal(t, "fanfar", got[0].Source)
	assert.Equal(t, measuredAt, got[0].MeasuredAt.UTC())
	// Rows ordered by attribute within a station.
	assert.Equal(t, domain.AttrDischarge, got[0].Attribute)
	assert.Equal(t, domain.AttrWaterLevel, got[1].Attribute)
}

func TestHistory_FiltersByCategoryAndWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := openTestStore(t, clock)
	ctx := context.Background()

	old := []domain.Measurement{{
		StationID: "meteo-somgande",
		Timestamp: clock.Now(),
		Values:    map[domain.Attribute]float64{domain.AttrPrecipitation: 1},
	}}
	require.NoError(t, s.SaveMeasurements(ctx, domain.CategoryMeteo, old, domain.SourceInfo{Name: "wigos"}))

	clock.Advance(3 * time.Hour)
	recent := []domain.Measurement{{
		StationID: "meteo-somgande",
		Timestamp: clock.Now(),
		Values:    map[domain.Attribute]float64{domain.AttrPrecipitation: 34.2},
	}}
	require.NoError(t, s.SaveMeasurements(ctx, domain.CategoryMeteo, recent, domain.SourceInfo{Name: "open-meteo", Tier: 1}))

	got, err := s.History(ctx, domain.CategoryMeteo, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1, "only the row inside the window")
	assert.InDelta(t, 34.2, got[0].Value, 1e-9)
	assert.Equal(t, 1, got[0].Tier)

	none, err := s.History(ctx, domain.CategoryHydro, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}
