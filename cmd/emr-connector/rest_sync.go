package main

import (
	"github.com/carelink/emr-connector/internal/config"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/fetcher"
	"github.com/carelink/emr-connector/internal/platform/db"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/sync"
)

func startRestSync(listenAddr string) {

	logger.InitLogger()

	logger.Log.Info("Starting EMR-Connector REST sync service")

	cfg := config.GetConfig()
	logger.Log.Info("EMR-Connector configuration:\n", cfg)

	if cfg.RestSourceHospitalId == "" {
		logger.Log.Fatal("No hospital id configured for the REST source")
	}

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogFatalError("Unable to connect to destination database", err)
	}

	restClient := fetcher.NewRestClient(&fetcher.RestClientConfig{
		BaseUrl:  cfg.RestSourceBaseUrl,
		Username: cfg.RestSourceUsername,
		Password: cfg.RestSourcePassword,
		Timeout:  cfg.RestSourceTimeout,
	})

	stores := buildDestinationStores(cfg, database)

	events, kafkaProducer := buildEventPublisher(cfg)

	pipeline, err := buildPipeline(cfg, stores, events)
	if err != nil {
		logger.LogFatalError("Unable to build sync pipeline", err)
	}

	orchestrator := sync.NewRestOrchestrator(restClient, domain.HospitalID(cfg.RestSourceHospitalId), stores.cursors, pipeline, events, cfg.SyncBatchSize, cfg.RestSyncInterval)

	runService(listenAddr, cfg, orchestrator, stores.syncRecords, func() {
		if kafkaProducer != nil {
			kafkaProducer.Close()
		}
	})
}
