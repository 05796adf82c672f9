package main

import (
	"github.com/carelink/emr-connector/internal/config"
	"github.com/carelink/emr-connector/internal/platform/db"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/sources"
	"github.com/carelink/emr-connector/internal/sync"
)

func startPooledSync(listenAddr string) {

	logger.InitLogger()

	logger.Log.Info("Starting EMR-Connector pooled sync service")

	cfg := config.GetConfig()
	logger.Log.Info("EMR-Connector configuration:\n", cfg)

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogFatalError("Unable to connect to destination database", err)
	}

	registry, err := sources.NewRegistryFromConfigFile(cfg.HospitalsConfigFile, cfg.SourcePoolSize)
	if err != nil {
		logger.LogFatalError("Unable to load hospitals config", err)
	}

	stores := buildDestinationStores(cfg, database)

	events, kafkaProducer := buildEventPublisher(cfg)

	pipeline, err := buildPipeline(cfg, stores, events)
	if err != nil {
		logger.LogFatalError("Unable to build sync pipeline", err)
	}

	orchestrator := sync.NewPooledOrchestrator(sync.NewSqlSourceRegistry(registry), stores.cursors, pipeline, events, cfg.SyncBatchSize, cfg.PooledSyncInterval)

	runService(listenAddr, cfg, orchestrator, stores.syncRecords, func() {
		registry.CloseAll()
		if kafkaProducer != nil {
			kafkaProducer.Close()
		}
	})
}
