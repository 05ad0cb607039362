package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

const wigosPayload = `{
  "features": [
    {"properties": {"reportId": "r2", "reportTime": "2025-08-15T12:00:00Z", "phenomenonTime": "2025-08-15T12:00:00Z", "name": "total_precipitation_or_total_water_equivalent", "value": 34.2, "units": "mm"}},
    {"properties": {"reportId": "r2", "reportTime": "2025-08-15T12:00:00Z", "phenomenonTime": "2025-08-15T12:00:00Z", "name": "air_temperature", "value": 27.4, "units": "Celsius"}},
    {"properties": {"reportId": "r2", "reportTime": "2025-08-15T12:00:00Z", "phenomenonTime": "2025-08-15T12:00:00Z", "name": "non_coordinate_pressure", "value": 1012.0, "units": "hPa"}},
    {"properties": {"reportId": "r1", "reportTime": "2025-08-15T11:00:00Z", "phenomenonTime": "2025-08-15T11:00:00Z", "name": "total_precipitation_or_total_water_equivalent", "value": 2.0, "units": "mm"}},
    {"properties": {"reportId": "r3", "reportTime": "2025-08-15T12:30:00Z", "phenomenonTime": "2025-08-15T12:30:00Z", "name": "relative_humidity", "value": null, "units": "%"}}
  ]
}`

func TestWigosClient_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(wigosPayload))
	}))
	defer srv.Close()

	c := NewWigosClient(srv.URL, "0-854-0-090", "meteo-somgande", time.Second, discardLogger())
	got, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	m := got[0]
	assert.Equal(t, "meteo-somgande", m.StationID)
	assert.Equal(t, time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC), m.Timestamp)
	assert.InDelta(t, 34.2, m.Values[domain.AttrPrecipitation], 1e-9)
	assert.InDelta(t, 27.4, m.Values[domain.AttrTemperature], 1e-9)
	// Pressure is not a rule input and must not leak into the measurement.
	assert.NotContains(t, m.Values, domain.Attribute("non_coordinate_pressure"))

	assert.Contains(t, gotQuery, "wigos_station_identifier=0-854-0-090")
	assert.Contains(t, gotQuery, "f=json")
}

func TestWigosClient_NullValuesDropped(t *testing.T) {
	// A report consisting only of malformed entries must not become a
	// measurement; the fetch still succeeds on the valid report.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(wigosPayload))
	}))
	defer srv.Close()

	c := NewWigosClient(srv.URL, "0-854-0-090", "meteo-somgande", time.Second, discardLogger())
	got, err := c.Fetch(context.Background())
	require.NoError(t, err)
	// r3 only held a null humidity entry, so the latest valid report is r2.
	assert.InDelta(t, 34.2, got[0].Values[domain.AttrPrecipitation], 1e-9)
}

func TestWigosClient_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewWigosClient(srv.URL, "0-854-0-090", "meteo-somgande", time.Second, discardLogger())
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no observations")
}

func TestWigosClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWigosClient(srv.URL, "0-854-0-090", "meteo-somgande", time.Second, discardLogger())
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
