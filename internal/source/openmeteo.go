package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
)

// openMeteoAttributes maps Open-Meteo hourly variables to measurement
// attributes.
var openMeteoAttributes = map[string]domain.Attribute{
	"precipitation":        domain.AttrPrecipitation,
	"temperature_2m":       domain.AttrTemperature,
	"relative_humidity_2m": domain.AttrHumidity,
	"wind_speed_10m":       domain.AttrWindSpeed,
}

var openMeteoHourly = []string{
	"precipitation",
	"temperature_2m",
	"relative_humidity_2m",
	"wind_speed_10m",
}

// OpenMeteoClient is the fallback meteorological source. Open-Meteo has no
// station concept; observations are attached to the same reference station
// as the WIGOS feed.
type OpenMeteoClient struct {
	baseURL    string
	lat, lon   float64
	stationID  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenMeteoClient creates the Open-Meteo client for the given coordinates.
func NewOpenMeteoClient(baseURL string, lat, lon float64, stationID string, timeout time.Duration, logger *slog.Logger) *OpenMeteoClient {
	return &OpenMeteoClient{
		baseURL:    baseURL,
		lat:        lat,
		lon:        lon,
		stationID:  stationID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *OpenMeteoClient) Name() string { return "open-meteo" }

// Fetch retrieves today's hourly series and picks the value at the current
// UTC hour.
func (c *OpenMeteoClient) Fetch(ctx context.Context) ([]domain.Measurement, error) {
	now := time.Now().UTC()
	date := now.Format("2006-01-02")

	params := url.Values{
		"latitude":   {fmt.Sprintf("%.4f", c.lat)},
		"longitude":  {fmt.Sprintf("%.4f", c.lon)},
		"hourly":     {joinHourly()},
		"start_date": {date},
		"end_date":   {date},
		"timezone":   {"UTC"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	hour := now.Hour()
	series := map[string][]*float64{
		"precipitation":        payload.Hourly.Precipitation,
		"temperature_2m":       payload.Hourly.Temperature,
		"relative_humidity_2m": payload.Hourly.Humidity,
		"wind_speed_10m":       payload.Hourly.WindSpeed,
	}
	values := make(map[domain.Attribute]float64, len(openMeteoAttributes))
	for variable, attr := range openMeteoAttributes {
		s := series[variable]
		if len(s) <= hour {
			c.logger.Warn("open-meteo series missing or short", "variable", variable, "hour", hour)
			continue
		}
		if s[hour] == nil {
			continue
		}
		values[attr] = *s[hour]
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("open-meteo: incomplete hourly data for %s", date)
	}

	return []domain.Measurement{{
		StationID: c.stationID,
		Timestamp: now.Truncate(time.Hour),
		Values:    values,
	}}, nil
}

func joinHourly() string {
	s := openMeteoHourly[0]
	for _, v := range openMeteoHourly[1:] {
		s += "," + v
	}
	return s
}

// Open-Meteo response types. Series values are nullable; the "time" series
// is deliberately not decoded.

type openMeteoResponse struct {
	Hourly struct {
		Precipitation []*float64 `json:"precipitation"`
		Temperature   []*float64 `json:"temperature_2m"`
		Humidity      []*float64 `json:"relative_humidity_2m"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
}
