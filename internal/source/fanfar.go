package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// FanfarStation binds a reference station to its FANFAR model point.
type FanfarStation struct {
	StationID string
	SubID     int
	Y         float64
	Dam       bool
}

// FanfarClient fetches discharge forecasts from the FANFAR HYPE web service,
// one request per configured station.
//
// FANFAR reports discharge only. Two derived attributes are produced during
// normalization, both carried over from the original operational model:
// water level is estimated as discharge/20, and for dams the capacity
// percentage is the discharge relative to the 2-year flood threshold (hq2),
// standing in for reservoir fill level until a telemetry feed exists.
type FanfarClient struct {
	baseURL    string
	model      string
	stations   []FanfarStation
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFanfarClient creates the FANFAR client for the given stations.
func NewFanfarClient(baseURL, model string, stations []FanfarStation, timeout time.Duration, logger *slog.Logger) *FanfarClient {
	return &FanfarClient{
		baseURL:    baseURL,
		model:      model,
		stations:   stations,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *FanfarClient) Name() string { return "fanfar" }

// Fetch retrieves the current discharge for every configured station. A
// station failing is logged and skipped; the fetch fails only when no
// station yields a measurement.
func (c *FanfarClient) Fetch(ctx context.Context) ([]domain.Measurement, error) {
	var measurements []domain.Measurement
	var lastErr error

	for _, st := range c.stations {
		m, err := c.fetchStation(ctx, st)
		if err != nil {
			c.logger.Warn("fanfar station fetch failed", "station", st.StationID, "subid", st.SubID, "error", err)
			lastErr = err
			continue
		}
		measurements = append(measurements, m)
	}

	if len(measurements) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("fanfar: no stations reachable: %w", lastErr)
		}
		return nil, fmt.Errorf("fanfar: no stations configured")
	}
	return measurements, nil
}

func (c *FanfarClient) fetchStation(ctx context.Context, st FanfarStation) (domain.Measurement, error) {
	u := fmt.Sprintf("%s/%s?x=undefined&y=%g&subid=%d", c.baseURL, c.model, st.Y, st.SubID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Measurement{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Measurement{}, fmt.Errorf("fanfar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Measurement{}, fmt.Errorf("fanfar API error: status %d: %s", resp.StatusCode, body)
	}

	var payload fanfarResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Measurement{}, fmt.Errorf("decode response: %w", err)
	}

	if len(payload.ChartData.Forecast) == 0 || len(payload.ChartData.Forecast[0]) < 2 {
		return domain.Measurement{}, fmt.Errorf("no forecast data for subid %d", st.SubID)
	}

	// The first forecast point is the current state: [timestamp_ms, m³/s].
	point := payload.ChartData.Forecast[0]
	tsMillis := int64(point[0])
	discharge := point[1]

	values := map[domain.Attribute]float64{
		domain.AttrDischarge:  discharge,
		domain.AttrWaterLevel: discharge / 20,
	}
	if st.Dam && payload.ChartData.HQ2 != nil && *payload.ChartData.HQ2 > 0 {
		values[domain.AttrCapacityPercentage] = discharge / *payload.ChartData.HQ2 * 100
	}

	return domain.Measurement{
		StationID: st.StationID,
		Timestamp: time.UnixMilli(tsMillis).UTC(),
		Values:    values,
	}, nil
}

// FANFAR response types.

type fanfarResponse struct {
	ChartData fanfarChartData `json:"chartData"`
}

type fanfarChartData struct {
	Forecast [][]float64 `json:"forecast"`
	HQ2      *float64    `json:"hq2"`
	HQ5      *float64    `json:"hq5"`
	HQ30     *float64    `json:"hq30"`
}
