package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Knowledge base inputs.
	ReferenceDataPath string
	RulesPath         string

	// Cache discipline. RefreshInterval must stay below CacheTTL so a
	// healthy refresher never lets entries go stale.
	CacheTTL        time.Duration
	RefreshInterval time.Duration

	// Upstream providers.
	SourceTimeout   time.Duration
	WigosBaseURL    string
	WigosStationID  string
	OpenMeteoURL    string
	OpenMeteoLat    float64
	OpenMeteoLon    float64
	FanfarBaseURL   string
	FanfarModel     string

	// Observation archive (SQLite). Empty path disables archiving.
	ArchivePath string

	// Early-warning alert publishing (feature-flagged via KAFKA_BROKERS).
	KafkaBrokers    []string
	KafkaAlertTopic string
	AlertsEnabled   bool
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "300s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "290s")
	if err != nil {
		return nil, err
	}
	sourceTimeout, err := parseDuration("SOURCE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	lat, err := parseFloat("OPENMETEO_LAT", 12.4052)
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("OPENMETEO_LON", -1.5063)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	alertsEnabled := len(brokers) > 0
	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		alertsEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ReferenceDataPath: envOrDefault("REFERENCE_DATA_PATH", "data/stations.yaml"),
		RulesPath:         envOrDefault("RULES_PATH", "data/flood_rules.txt"),

		CacheTTL:        cacheTTL,
		RefreshInterval: refreshInterval,

		SourceTimeout:  sourceTimeout,
		WigosBaseURL:   envOrDefault("WIGOS_BASE_URL", "https://wis2.meteoburkina.bf/oapi/collections/urn:wmo:md:bf-anam:mx2w8y/items"),
		WigosStationID: envOrDefault("WIGOS_STATION_ID", "0-854-0-090"),
		OpenMeteoURL:   envOrDefault("OPENMETEO_URL", "https://api.open-meteo.com/v1/forecast"),
		OpenMeteoLat:   lat,
		OpenMeteoLon:   lon,
		FanfarBaseURL:  envOrDefault("FANFAR_BASE_URL", "https://hypewebapp.smhi.se/fanfar/server/point"),
		FanfarModel:    envOrDefault("FANFAR_MODEL", "wa-hype1.2_hgfd3.2_ecoper_noEOWL_INSITU-AR"),

		ArchivePath: envOrDefault("ARCHIVE_PATH", "data/observations.db"),

		KafkaBrokers:    brokers,
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "flood-early-warnings"),
		AlertsEnabled:   alertsEnabled,
	}

	if cfg.ReferenceDataPath == "" {
		return nil, errors.New("REFERENCE_DATA_PATH is required")
	}
	if cfg.RulesPath == "" {
		return nil, errors.New("RULES_PATH is required")
	}
	if cfg.RefreshInterval >= cfg.CacheTTL {
		return nil, errors.New("REFRESH_INTERVAL must be shorter than CACHE_TTL")
	}
	if cfg.AlertsEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("ALERTS_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
