package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/adapter/httpapi"
	kafkaadapter "github.com/tanguy-kabore/bf-flood-prediction-backend/internal/adapter/kafka"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/archive"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/cache"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/config"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/domain"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/observability"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/predict"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/refdata"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/rules"
	"github.com/tanguy-kabore/bf-flood-prediction-backend/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ref, fanfarPoints, err := refdata.Load(cfg.ReferenceDataPath)
	if err != nil {
		logger.Error("failed to load reference data", "path", cfg.ReferenceDataPath, "error", err)
		os.Exit(1)
	}
	logger.Info("reference data loaded",
		"city", ref.City, "stations", len(ref.Stations), "areas", len(ref.Areas))

	ruleset, err := rules.LoadRuleset(cfg.RulesPath)
	if err != nil {
		logger.Error("failed to load rules", "path", cfg.RulesPath, "error", err)
		os.Exit(1)
	}
	logger.Info("rules loaded", "path", cfg.RulesPath, "rules", len(ruleset.Active().Rules()))

	manager := source.NewManager(cfg.SourceTimeout, logger, metrics)
	registerSources(cfg, ref, fanfarPoints, manager, logger)

	store := cache.New(cfg.CacheTTL, clock)

	// Observation archive (feature-flagged via ARCHIVE_PATH).
	var archiveStore *archive.Store
	var archiver cache.Archiver
	var history httpapi.HistoryReader
	if cfg.ArchivePath != "" {
		archiveStore, err = archive.Open(cfg.ArchivePath, clock)
		if err != nil {
			logger.Error("failed to open observation archive", "path", cfg.ArchivePath, "error", err)
			os.Exit(1)
		}
		archiver = archiveStore
		history = archiveStore
		logger.Info("observation archive enabled", "path", cfg.ArchivePath)
	} else {
		logger.Info("observation archive disabled")
	}

	refresher := cache.NewRefresher(store, manager, archiver, cfg.RefreshInterval, logger, metrics)

	// Alert publishing (feature-flagged via KAFKA_BROKERS / ALERTS_ENABLED).
	var alertPublisher *kafkaadapter.AlertPublisher
	var alerts predict.AlertPublisher
	if cfg.AlertsEnabled {
		alertPublisher = kafkaadapter.NewAlertPublisher(cfg, logger)
		alerts = alertPublisher
		logger.Info("alert publishing enabled", "topic", cfg.KafkaAlertTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("alert publishing disabled")
	}

	engine := rules.NewEngine(logger, metrics)
	predictor := predict.New(ref, store, ruleset, engine, alerts, cfg.CacheTTL, clock, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, predictor, history, readiness{predictor}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := refresher.Start(ctx); err != nil {
		logger.Error("failed to start cache refresher", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	refresher.Stop()
	if alertPublisher != nil {
		if err := alertPublisher.Close(); err != nil {
			logger.Error("alert publisher close error", "error", err)
		}
	}
	if archiveStore != nil {
		if err := archiveStore.Close(); err != nil {
			logger.Error("archive close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// registerSources builds the per-category provider chains: WIGOS with
// Open-Meteo as fallback for weather, FANFAR for hydrology.
func registerSources(cfg *config.Config, ref domain.Reference, points map[string]refdata.FanfarPoint, manager *source.Manager, logger *slog.Logger) {
	weatherStation := ""
	var fanfarStations []source.FanfarStation
	for id, st := range ref.Stations {
		switch st.Kind {
		case domain.StationWeather:
			weatherStation = id
		default:
			p := points[id]
			fanfarStations = append(fanfarStations, source.FanfarStation{
				StationID: id,
				SubID:     p.SubID,
				Y:         p.Y,
				Dam:       st.Kind == domain.StationDam,
			})
		}
	}

	manager.Register(domain.CategoryMeteo,
		source.NewWigosClient(cfg.WigosBaseURL, cfg.WigosStationID, weatherStation, cfg.SourceTimeout, logger))
	manager.Register(domain.CategoryMeteo,
		source.NewOpenMeteoClient(cfg.OpenMeteoURL, cfg.OpenMeteoLat, cfg.OpenMeteoLon, weatherStation, cfg.SourceTimeout, logger))
	manager.Register(domain.CategoryHydro,
		source.NewFanfarClient(cfg.FanfarBaseURL, cfg.FanfarModel, fanfarStations, cfg.SourceTimeout, logger))
}

// readiness gates /readyz on the predictor being able to produce a result.
// Missing measurements degrade confidence but do not make the service
// unready.
type readiness struct {
	predictor *predict.Predictor
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	_, err := r.predictor.GetPrediction(ctx)
	return err
}
