package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"shhe-backend/internal/aggregator"
	"shhe-backend/internal/api"
	"shhe-backend/internal/database"
	"shhe-backend/internal/metric"
	"shhe-backend/internal/ml"
	"shhe-backend/internal/mqtt"
	"shhe-backend/internal/services"
	"shhe-backend/internal/storage"
	"shhe-backend/pkg/config"
)

func main() {
	cfg := config.Load()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	logger.Info("starting Smart Home Health Ecosystem backend")

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recordLog, err := storage.NewRecordLog(cfg.LogPath, logger)
	if err != nil {
		return err
	}

	metrics := metric.NewMetrics()

	// Optional ClickHouse mirror
	var mirror services.RecordMirror
	if cfg.ClickHouseAddr != "" {
		db, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, logger)
		if err != nil {
			logger.Warn("ClickHouse mirror disabled", "error", err)
		} else {
			defer db.Close()
			mirror = db
		}
	}

	// === MQTT ===
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.BrokerURL(),
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Close()

	publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
		StatusTopic:   cfg.MQTTTopicStatus,
		ScheduleTopic: cfg.MQTTTopicSchedule,
	}, logger)

	// === Pipeline ===
	classifier := ml.NewClassifier(ml.SelectScorer(cfg.ModelPath, logger), logger)
	engine := aggregator.NewFeatureEngine(cfg.RollingWindow)

	ingestionConfig := services.DefaultIngestionServiceConfig()
	ingestionConfig.Mirror = mirror
	ingestionConfig.Metrics = metrics
	ingestionConfig.Logger = logger
	ingestion := services.NewIngestionService(engine, classifier, recordLog, publisher, ingestionConfig)

	if cfg.WarmStart {
		if _, err := ingestion.WarmStart(); err != nil {
			logger.Warn("warm start failed, starting with empty state", "error", err)
		}
	}

	subscriber := mqtt.NewSubscriber(mqttClient, mqtt.SubscriberConfig{
		TelemetryTopic: cfg.MQTTTopicData,
	}, ingestion.InputChan, logger)
	if err := subscriber.SubscribeAll(); err != nil {
		return err
	}

	scheduler := services.NewScheduleService(publisher, logger)

	// === HTTP ===
	handler := api.NewHandler(ingestion, recordLog, scheduler, mqttClient.IsConnected, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, metrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		ingestion.Start(ctx)
		close(done)
	}()

	logger.Info("running",
		"broker", cfg.BrokerURL(),
		"data_topic", cfg.MQTTTopicData,
		"status_topic", cfg.MQTTTopicStatus,
		"schedule_topic", cfg.MQTTTopicSchedule,
		"log", cfg.LogPath)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		cancel()
		<-done
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}

	<-done
	return nil
}
