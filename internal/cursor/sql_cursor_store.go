package cursor

import (
	"context"
	"database/sql"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type SqlCursorStore struct {
	database     *sql.DB
	queryTimeout time.Duration
	metrics      *sqlCursorStoreMetrics
}

type sqlCursorStoreMetrics struct {
	sqlCursorLookupDuration  prometheus.Histogram
	sqlCursorAdvanceDuration prometheus.Histogram
}

var sharedSqlCursorStoreMetrics *sqlCursorStoreMetrics

func init() {
	sharedSqlCursorStoreMetrics = new(sqlCursorStoreMetrics)

	sharedSqlCursorStoreMetrics.sqlCursorLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "emr_connector_sql_cursor_lookup_duration",
		Help: "The amount of time it took to look up a sync cursor in the db",
	})

	sharedSqlCursorStoreMetrics.sqlCursorAdvanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "emr_connector_sql_cursor_advance_duration",
		Help: "The amount of time it took to advance a sync cursor in the db",
	})
}

func NewSqlCursorStore(database *sql.DB, queryTimeout time.Duration) *SqlCursorStore {
	return &SqlCursorStore{
		database:     database,
		queryTimeout: queryTimeout,
		metrics:      sharedSqlCursorStoreMetrics,
	}
}

// Get returns the last synced marker for a hospital, or zero when the
// hospital has never been synced.
func (scs *SqlCursorStore) Get(ctx context.Context, hospitalID domain.HospitalID, variant Variant) (int64, error) {

	callDurationTimer := prometheus.NewTimer(scs.metrics.sqlCursorLookupDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	statement, err := scs.database.Prepare(
		"SELECT last_synced_marker FROM sync_cursors WHERE hospital_id = $1 AND variant = $2")
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return 0, err
	}
	defer statement.Close()

	var marker int64
	err = statement.QueryRowContext(ctx, hospitalID, variant).Scan(&marker)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		logger.LogErrorWithHospitalID("SQL query for sync cursor failed", err, hospitalID)
		return 0, err
	}

	return marker, nil
}

// Advance moves the marker forward.  A marker at or below the stored value is
// a no-op, so the cursor is monotonically non-decreasing even if a caller
// replays an old batch.
func (scs *SqlCursorStore) Advance(ctx context.Context, hospitalID domain.HospitalID, variant Variant, marker int64) error {

	callDurationTimer := prometheus.NewTimer(scs.metrics.sqlCursorAdvanceDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	statement, err := scs.database.Prepare(
		`INSERT INTO sync_cursors (hospital_id, variant, last_synced_marker, updated_at)
           VALUES ($1, $2, $3, NOW())
           ON CONFLICT (hospital_id, variant) DO UPDATE
             SET last_synced_marker = EXCLUDED.last_synced_marker, updated_at = NOW()
             WHERE sync_cursors.last_synced_marker < EXCLUDED.last_synced_marker`)
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	results, err := statement.ExecContext(ctx, hospitalID, variant, marker)
	if err != nil {
		logger.LogErrorWithHospitalID("SQL update for sync cursor failed", err, hospitalID)
		return err
	}

	rowsAffected, _ := results.RowsAffected()

	logger.Log.WithFields(logrus.Fields{
		"hospital_id":   hospitalID,
		"variant":       variant,
		"marker":        marker,
		"rows_affected": rowsAffected}).Debug("Advanced sync cursor")

	return nil
}

// All returns the stored marker for every hospital the variant has synced.
func (scs *SqlCursorStore) All(ctx context.Context, variant Variant) (map[domain.HospitalID]int64, error) {

	ctx, cancel := context.WithTimeout(ctx, scs.queryTimeout)
	defer cancel()

	statement, err := scs.database.Prepare(
		"SELECT hospital_id, last_synced_marker FROM sync_cursors WHERE variant = $1")
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	rows, err := statement.QueryContext(ctx, variant)
	if err != nil {
		logger.LogError("SQL query for sync cursors failed", err)
		return nil, err
	}
	defer rows.Close()

	markers := make(map[domain.HospitalID]int64)
	for rows.Next() {
		var hospitalID domain.HospitalID
		var marker int64
		if err := rows.Scan(&hospitalID, &marker); err != nil {
			logger.LogError("SQL scan failed.  Skipping row.", err)
			continue
		}
		markers[hospitalID] = marker
	}

	return markers, nil
}
