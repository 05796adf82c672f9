package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SqlRecordStore struct {
	database     *sql.DB
	queryTimeout time.Duration
	metrics      *sqlRecordStoreMetrics
}

type sqlRecordStoreMetrics struct {
	sqlRecordCreationDuration prometheus.Histogram
	sqlRecordLookupDuration   prometheus.Histogram
}

var sharedSqlRecordStoreMetrics *sqlRecordStoreMetrics

func init() {
	sharedSqlRecordStoreMetrics = new(sqlRecordStoreMetrics)

	sharedSqlRecordStoreMetrics.sqlRecordCreationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "emr_connector_sql_record_creation_duration",
		Help: "The amount of time it took to persist a synced record in the db",
	})

	sharedSqlRecordStoreMetrics.sqlRecordLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "emr_connector_sql_record_lookup_duration",
		Help: "The amount of time it took to look up a synced record in the db",
	})
}

func NewSqlRecordStore(database *sql.DB, queryTimeout time.Duration) *SqlRecordStore {
	return &SqlRecordStore{
		database:     database,
		queryTimeout: queryTimeout,
		metrics:      sharedSqlRecordStoreMetrics,
	}
}

const recordColumns = `ref, patient_ref, record_type, diagnosis_name, medication_name, test_name,
        detail, record_date, medication_status, created_by_ref, hospital_id, source_obs_id,
        arrival_timestamp, editable_by`

func (srs *SqlRecordStore) scanRecord(row *sql.Row) (*domain.SyncedRecord, error) {

	var record domain.SyncedRecord
	var medicationStatus sql.NullString
	var sourceObsID sql.NullInt64
	var arrivalTimestamp sql.NullTime
	var editableBy []byte

	err := row.Scan(&record.Ref, &record.PatientRef, &record.RecordType,
		&record.DiagnosisName, &record.MedicationName, &record.TestName,
		&record.Detail, &record.RecordDate, &medicationStatus,
		&record.CreatedByRef, &record.HospitalID, &sourceObsID,
		&arrivalTimestamp, &editableBy)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if medicationStatus.Valid {
		record.MedicationStatus = domain.MedicationStatus(medicationStatus.String)
	}
	if sourceObsID.Valid {
		record.SourceObsID = &sourceObsID.Int64
	}
	if arrivalTimestamp.Valid {
		record.ArrivalTimestamp = &arrivalTimestamp.Time
	}
	if len(editableBy) > 0 {
		if err := json.Unmarshal(editableBy, &record.EditableBy); err != nil {
			logger.LogError("Unable to parse editable_by for synced record", err)
		}
	}

	return &record, nil
}

func (srs *SqlRecordStore) findOne(ctx context.Context, query string, args ...interface{}) (*domain.SyncedRecord, error) {

	callDurationTimer := prometheus.NewTimer(srs.metrics.sqlRecordLookupDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, srs.queryTimeout)
	defer cancel()

	statement, err := srs.database.Prepare(query)
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	return srs.scanRecord(statement.QueryRowContext(ctx, args...))
}

func (srs *SqlRecordStore) FindByRef(ctx context.Context, ref string) (*domain.SyncedRecord, error) {
	return srs.findOne(ctx,
		"SELECT "+recordColumns+" FROM synced_records WHERE ref = $1", ref)
}

func (srs *SqlRecordStore) FindBySourceObsID(ctx context.Context, hospitalID domain.HospitalID, sourceObsID int64) (*domain.SyncedRecord, error) {
	return srs.findOne(ctx,
		"SELECT "+recordColumns+" FROM synced_records WHERE hospital_id = $1 AND source_obs_id = $2",
		hospitalID, sourceObsID)
}

// FindByNaturalKey matches the type-specific natural key: name + date for
// condition, medication and test records, date alone for visits.
func (srs *SqlRecordStore) FindByNaturalKey(ctx context.Context, patientRef string, recordType domain.RecordType, name string, recordDate time.Time) (*domain.SyncedRecord, error) {

	base := "SELECT " + recordColumns + " FROM synced_records WHERE patient_ref = $1 AND record_type = $2"

	switch recordType {
	case domain.RecordTypeCondition:
		return srs.findOne(ctx, base+" AND diagnosis_name = $3 AND record_date::date = $4::date",
			patientRef, recordType, name, recordDate)
	case domain.RecordTypeMedication:
		return srs.findOne(ctx, base+" AND medication_name = $3 AND record_date::date = $4::date",
			patientRef, recordType, name, recordDate)
	case domain.RecordTypeTest:
		return srs.findOne(ctx, base+" AND test_name = $3 AND record_date::date = $4::date",
			patientRef, recordType, name, recordDate)
	default:
		return srs.findOne(ctx, base+" AND record_date::date = $3::date",
			patientRef, recordType, recordDate)
	}
}

func (srs *SqlRecordStore) Create(ctx context.Context, record *domain.SyncedRecord) error {

	callDurationTimer := prometheus.NewTimer(srs.metrics.sqlRecordCreationDuration)
	defer callDurationTimer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, srs.queryTimeout)
	defer cancel()

	statement, err := srs.database.Prepare(
		`INSERT INTO synced_records (` + recordColumns + `)
           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	var medicationStatus sql.NullString
	if record.MedicationStatus != "" {
		medicationStatus = sql.NullString{String: string(record.MedicationStatus), Valid: true}
	}

	var sourceObsID sql.NullInt64
	if record.SourceObsID != nil {
		sourceObsID = sql.NullInt64{Int64: *record.SourceObsID, Valid: true}
	}

	var arrivalTimestamp sql.NullTime
	if record.ArrivalTimestamp != nil {
		arrivalTimestamp = sql.NullTime{Time: *record.ArrivalTimestamp, Valid: true}
	}

	editableBy, err := json.Marshal(record.EditableBy)
	if err != nil {
		return err
	}

	_, err = statement.ExecContext(ctx, record.Ref, record.PatientRef, record.RecordType,
		record.DiagnosisName, record.MedicationName, record.TestName,
		record.Detail, record.RecordDate, medicationStatus,
		record.CreatedByRef, record.HospitalID, sourceObsID,
		arrivalTimestamp, editableBy)

	return err
}

func (srs *SqlRecordStore) UpdateMedicationStatus(ctx context.Context, ref string, status domain.MedicationStatus) error {

	ctx, cancel := context.WithTimeout(ctx, srs.queryTimeout)
	defer cancel()

	statement, err := srs.database.Prepare(
		"UPDATE synced_records SET medication_status = $1 WHERE ref = $2")
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx, status, ref)
	if err != nil {
		logger.LogError("SQL update for medication status failed", err)
		return err
	}

	return nil
}
