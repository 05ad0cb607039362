package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// wigosAttributes maps WIGOS parameter names to measurement attributes.
// Parameters outside this map (pressure, wind direction) are not used by any
// rule and are ignored.
var wigosAttributes = map[string]domain.Attribute{
	"total_precipitation_or_total_water_equivalent": domain.AttrPrecipitation,
	"air_temperature":   domain.AttrTemperature,
	"relative_humidity": domain.AttrHumidity,
	"wind_speed":        domain.AttrWindSpeed,
}

// WigosClient fetches surface observations from the Météo Burkina WIS2 OAPI
// collection. It is the primary meteorological source.
type WigosClient struct {
	baseURL    string
	wigosID    string
	stationID  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWigosClient creates the WIGOS client. stationID is the reference-data
// station the observations are attached to; wigosID is the upstream WIGOS
// station identifier.
func NewWigosClient(baseURL, wigosID, stationID string, timeout time.Duration, logger *slog.Logger) *WigosClient {
	return &WigosClient{
		baseURL:    baseURL,
		wigosID:    wigosID,
		stationID:  stationID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *WigosClient) Name() string { return "wigos" }

// Fetch retrieves the latest report for the previous full hour and
// normalizes it into one Measurement. Malformed feature entries are dropped
// with a warning; they never abort the fetch.
func (c *WigosClient) Fetch(ctx context.Context) ([]domain.Measurement, error) {
	since := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)

	params := url.Values{
		"f":                        {"json"},
		"datetime":                 {since.Format("2006-01-02T15:04:05Z") + "/.."},
		"wigos_station_identifier": {c.wigosID},
		"limit":                    {"6"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wigos request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("wigos API error: status %d: %s", resp.StatusCode, body)
	}

	var payload wigosResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Features) == 0 {
		return nil, fmt.Errorf("wigos: no observations for station %s since %s", c.wigosID, since.Format(time.RFC3339))
	}

	return c.normalize(payload.Features)
}

// normalize groups features by reportId and converts the most recent report
// into a Measurement.
func (c *WigosClient) normalize(features []wigosFeature) ([]domain.Measurement, error) {
	type report struct {
		time   time.Time
		values map[domain.Attribute]float64
	}
	reports := make(map[string]*report)

	for _, f := range features {
		p := f.Properties
		if p.ReportID == "" || p.Name == "" || p.Value == nil {
			c.logger.Warn("dropping malformed wigos observation",
				"report_id", p.ReportID, "parameter", p.Name)
			continue
		}
		attr, ok := wigosAttributes[p.Name]
		if !ok {
			continue
		}

		r, exists := reports[p.ReportID]
		if !exists {
			ts, err := time.Parse(time.RFC3339, p.ReportTime)
			if err != nil {
				ts, err = time.Parse(time.RFC3339, p.PhenomenonTime)
				if err != nil {
					c.logger.Warn("dropping wigos observation with unparseable time",
						"report_id", p.ReportID, "report_time", p.ReportTime)
					continue
				}
			}
			r = &report{time: ts, values: make(map[domain.Attribute]float64)}
			reports[p.ReportID] = r
		}
		r.values[attr] = *p.Value
	}

	if len(reports) == 0 {
		return nil, fmt.Errorf("wigos: all observations malformed")
	}

	all := make([]*report, 0, len(reports))
	for _, r := range reports {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].time.After(all[j].time) })

	latest := all[0]
	return []domain.Measurement{{
		StationID: c.stationID,
		Timestamp: latest.time,
		Values:    latest.values,
	}}, nil
}

// WIGOS OAPI response types.

type wigosResponse struct {
	Features []wigosFeature `json:"features"`
}

type wigosFeature struct {
	Properties wigosProperties `json:"properties"`
}

type wigosProperties struct {
	ReportID       string   `json:"reportId"`
	ReportTime     string   `json:"reportTime"`
	PhenomenonTime string   `json:"phenomenonTime"`
	Name           string   `json:"name"`
	Value          *float64 `json:"value"`
	Units          string   `json:"units"`
}
