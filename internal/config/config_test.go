package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data/stations.yaml", cfg.ReferenceDataPath)
	assert.Equal(t, "data/flood_rules.txt", cfg.RulesPath)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL)
	assert.Equal(t, 290*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout)
	assert.Equal(t, "0-854-0-090", cfg.WigosStationID)
	assert.InDelta(t, 12.4052, cfg.OpenMeteoLat, 1e-9)
	assert.InDelta(t, -1.5063, cfg.OpenMeteoLon, 1e-9)
	assert.Equal(t, "data/observations.db", cfg.ArchivePath)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.AlertsEnabled)
	assert.Equal(t, "flood-early-warnings", cfg.KafkaAlertTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CACHE_TTL", "600s")
	t.Setenv("REFRESH_INTERVAL", "590s")
	t.Setenv("SOURCE_TIMEOUT", "5s")
	t.Setenv("WIGOS_STATION_ID", "0-854-0-001")
	t.Setenv("OPENMETEO_LAT", "12.5")
	t.Setenv("OPENMETEO_LON", "-1.6")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_ALERT_TOPIC", "alerts")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 600*time.Second, cfg.CacheTTL)
	assert.Equal(t, 590*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.SourceTimeout)
	assert.Equal(t, "0-854-0-001", cfg.WigosStationID)
	assert.InDelta(t, 12.5, cfg.OpenMeteoLat, 1e-9)
	assert.InDelta(t, -1.6, cfg.OpenMeteoLon, 1e-9)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.KafkaAlertTopic)
	assert.True(t, cfg.AlertsEnabled)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("CACHE_TTL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_NegativeDuration(t *testing.T) {
	t.Setenv("SOURCE_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCE_TIMEOUT")
}

func TestLoad_RefreshMustBeatTTL(t *testing.T) {
	t.Setenv("CACHE_TTL", "100s")
	t.Setenv("REFRESH_INTERVAL", "100s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_INTERVAL")
}

func TestLoad_AlertsNeedBrokers(t *testing.T) {
	t.Setenv("ALERTS_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_InvalidFloat(t *testing.T) {
	t.Setenv("OPENMETEO_LAT", "north")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENMETEO_LAT")
}
