package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"github.com/carelink/emr-connector/internal/accesswindow"
	"github.com/carelink/emr-connector/internal/classify"
	"github.com/carelink/emr-connector/internal/config"
	"github.com/carelink/emr-connector/internal/controller/api"
	"github.com/carelink/emr-connector/internal/cursor"
	"github.com/carelink/emr-connector/internal/identity"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/platform/queue"
	"github.com/carelink/emr-connector/internal/platform/utils"
	"github.com/carelink/emr-connector/internal/records"
	"github.com/carelink/emr-connector/internal/sync"

	"github.com/gorilla/mux"
	kafka "github.com/segmentio/kafka-go"
)

// destinationStores bundles everything built on top of the destination
// database connection.
type destinationStores struct {
	cursors     cursor.Store
	patients    records.PatientStore
	doctors     records.DoctorStore
	hospitals   records.HospitalStore
	syncRecords records.RecordStore
}

func buildDestinationStores(cfg *config.Config, database *sql.DB) *destinationStores {
	return &destinationStores{
		cursors:     cursor.NewSqlCursorStore(database, cfg.DestinationDatabaseQueryTimeout),
		patients:    records.NewSqlPatientStore(database, cfg.DestinationDatabaseQueryTimeout),
		doctors:     records.NewSqlDoctorStore(database, cfg.DestinationDatabaseQueryTimeout),
		hospitals:   records.NewSqlHospitalStore(database, cfg.DestinationDatabaseQueryTimeout),
		syncRecords: records.NewSqlRecordStore(database, cfg.DestinationDatabaseQueryTimeout),
	}
}

func buildPipeline(cfg *config.Config, stores *destinationStores, events *sync.EventPublisher) (*sync.Pipeline, error) {

	resolver, err := identity.NewResolver(stores.patients, cfg.IdentityCacheSize)
	if err != nil {
		return nil, err
	}

	classifier := classify.NewClassifier()
	dedup := records.NewDedupGuard(stores.syncRecords)
	writer := records.NewWriter(stores.syncRecords, stores.doctors, stores.hospitals)

	return sync.NewPipeline(resolver, classifier, dedup, writer, events), nil
}

// buildEventPublisher wires the kafka audit feed.  No brokers configured
// means no feed; the publisher then swallows every event.
func buildEventPublisher(cfg *config.Config) (*sync.EventPublisher, *kafka.Writer) {

	if len(cfg.KafkaBrokers) == 0 {
		logger.Log.Info("No kafka brokers configured.  Sync event feed is disabled.")
		return sync.NewEventPublisher(nil), nil
	}

	var saslConfig *queue.SaslConfig
	if cfg.KafkaSASLMechanism != "" {
		saslConfig = &queue.SaslConfig{
			SaslMechanism: cfg.KafkaSASLMechanism,
			SaslUsername:  cfg.KafkaUsername,
			SaslPassword:  cfg.KafkaPassword,
			KafkaCA:       cfg.KafkaCA,
		}
	}

	kafkaProducer := queue.StartProducer(&queue.ProducerConfig{
		Brokers:    cfg.KafkaBrokers,
		SaslConfig: saslConfig,
		Topic:      cfg.KafkaEventsTopic,
		BatchSize:  cfg.KafkaEventsBatchSize,
		BatchBytes: cfg.KafkaEventsBatchBytes,
		Balancer:   "hash",
	})

	return sync.NewEventPublisher(kafkaProducer), kafkaProducer
}

func buildEvaluator(cfg *config.Config) *accesswindow.Evaluator {
	return accesswindow.NewEvaluatorWithWindows(cfg.AccessWindowFreshDuration, cfg.AccessWindowEditGraceDuration)
}

// runService starts the orchestrator loop and the management HTTP surface,
// then blocks until a shutdown signal arrives.
func runService(listenAddr string, cfg *config.Config, orchestrator sync.Orchestrator, recordStore records.RecordStore, shutdownHooks ...func()) {

	stop := make(chan struct{})
	go orchestrator.Run(stop)

	apiMux := mux.NewRouter()

	monitoringServer := api.NewMonitoringServer(apiMux, cfg)
	monitoringServer.Routes()

	mgmtServer := api.NewManagementServer(orchestrator, recordStore, buildEvaluator(cfg), apiMux, cfg.UrlBasePath, cfg)
	mgmtServer.Routes()

	apiSrv := utils.StartHTTPServer(listenAddr, "management", apiMux)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.Log.Info("Received signal to shutdown: ", sig)

	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "management", apiSrv)

	for _, hook := range shutdownHooks {
		hook()
	}

	logger.FlushLogger()
	logger.Log.Info("Shutting down")
}
