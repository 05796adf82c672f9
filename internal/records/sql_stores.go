package records

import (
	"context"
	"database/sql"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"
)

// SqlPatientStore implements PatientStore against the destination Postgres
// store.
type SqlPatientStore struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlPatientStore(database *sql.DB, queryTimeout time.Duration) *SqlPatientStore {
	return &SqlPatientStore{database: database, queryTimeout: queryTimeout}
}

const patientColumns = "ref, national_id, given_name, family_name, gender, birth_date, address, email, external_id"

func (sps *SqlPatientStore) findOne(ctx context.Context, query string, args ...interface{}) (*domain.Patient, error) {

	ctx, cancel := context.WithTimeout(ctx, sps.queryTimeout)
	defer cancel()

	statement, err := sps.database.Prepare(query)
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	var patient domain.Patient
	var birthDate sql.NullTime

	err = statement.QueryRowContext(ctx, args...).Scan(
		&patient.Ref, &patient.NationalID,
		&patient.GivenName, &patient.FamilyName,
		&patient.Gender, &birthDate,
		&patient.Address, &patient.Email, &patient.ExternalID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if birthDate.Valid {
		patient.BirthDate = &birthDate.Time
	}

	return &patient, nil
}

func (sps *SqlPatientStore) FindByRef(ctx context.Context, ref string) (*domain.Patient, error) {
	return sps.findOne(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE ref = $1", ref)
}

func (sps *SqlPatientStore) FindByNationalID(ctx context.Context, nationalID string) (*domain.Patient, error) {
	return sps.findOne(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE national_id = $1", nationalID)
}

func (sps *SqlPatientStore) FindByFullName(ctx context.Context, givenName, familyName string) (*domain.Patient, error) {
	return sps.findOne(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE LOWER(given_name) = LOWER($1) AND LOWER(family_name) = LOWER($2)",
		givenName, familyName)
}

func (sps *SqlPatientStore) FindByNameLike(ctx context.Context, givenName, familyName string) (*domain.Patient, error) {
	return sps.findOne(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE given_name ILIKE $1 AND family_name ILIKE $2",
		givenName+"%", familyName+"%")
}

func (sps *SqlPatientStore) FindByFamilyName(ctx context.Context, familyName string) (*domain.Patient, error) {
	return sps.findOne(ctx,
		"SELECT "+patientColumns+" FROM patients WHERE LOWER(family_name) = LOWER($1)", familyName)
}

func (sps *SqlPatientStore) Create(ctx context.Context, patient *domain.Patient) error {

	ctx, cancel := context.WithTimeout(ctx, sps.queryTimeout)
	defer cancel()

	statement, err := sps.database.Prepare(
		`INSERT INTO patients (ref, national_id, given_name, family_name, gender, birth_date, address, email, external_id)
           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	var birthDate sql.NullTime
	if patient.BirthDate != nil {
		birthDate = sql.NullTime{Time: *patient.BirthDate, Valid: true}
	}

	_, err = statement.ExecContext(ctx, patient.Ref, patient.NationalID,
		patient.GivenName, patient.FamilyName, patient.Gender, birthDate,
		patient.Address, patient.Email, patient.ExternalID)
	if err != nil {
		logger.LogError("SQL insert for patient failed", err)
		return err
	}

	return nil
}

// SqlDoctorStore implements DoctorStore against the destination store.
type SqlDoctorStore struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlDoctorStore(database *sql.DB, queryTimeout time.Duration) *SqlDoctorStore {
	return &SqlDoctorStore{database: database, queryTimeout: queryTimeout}
}

func (sds *SqlDoctorStore) findOne(ctx context.Context, query string, args ...interface{}) (*domain.Doctor, error) {

	ctx, cancel := context.WithTimeout(ctx, sds.queryTimeout)
	defer cancel()

	statement, err := sds.database.Prepare(query)
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	var doctor domain.Doctor
	err = statement.QueryRowContext(ctx, args...).Scan(
		&doctor.Ref, &doctor.LicenseNumber, &doctor.Name, &doctor.Email)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &doctor, nil
}

func (sds *SqlDoctorStore) FindByLicense(ctx context.Context, licenseNumber string) (*domain.Doctor, error) {
	return sds.findOne(ctx,
		"SELECT ref, license_number, name, email FROM doctors WHERE license_number = $1", licenseNumber)
}

func (sds *SqlDoctorStore) FindByName(ctx context.Context, name string) (*domain.Doctor, error) {
	return sds.findOne(ctx,
		"SELECT ref, license_number, name, email FROM doctors WHERE LOWER(name) = LOWER($1)", name)
}

func (sds *SqlDoctorStore) Create(ctx context.Context, doctor *domain.Doctor) error {

	ctx, cancel := context.WithTimeout(ctx, sds.queryTimeout)
	defer cancel()

	statement, err := sds.database.Prepare(
		"INSERT INTO doctors (ref, license_number, name, email) VALUES ($1, $2, $3, $4)")
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx, doctor.Ref, doctor.LicenseNumber, doctor.Name, doctor.Email)
	if err != nil {
		logger.LogError("SQL insert for doctor failed", err)
		return err
	}

	return nil
}

// SqlHospitalStore implements HospitalStore against the destination store.
type SqlHospitalStore struct {
	database     *sql.DB
	queryTimeout time.Duration
}

func NewSqlHospitalStore(database *sql.DB, queryTimeout time.Duration) *SqlHospitalStore {
	return &SqlHospitalStore{database: database, queryTimeout: queryTimeout}
}

func (shs *SqlHospitalStore) FindByHospitalID(ctx context.Context, hospitalID domain.HospitalID) (*domain.Hospital, error) {

	ctx, cancel := context.WithTimeout(ctx, shs.queryTimeout)
	defer cancel()

	statement, err := shs.database.Prepare(
		"SELECT ref, hospital_id, name FROM hospitals WHERE hospital_id = $1")
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	var hospital domain.Hospital
	err = statement.QueryRowContext(ctx, hospitalID).Scan(
		&hospital.Ref, &hospital.HospitalID, &hospital.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &hospital, nil
}

func (shs *SqlHospitalStore) Create(ctx context.Context, hospital *domain.Hospital) error {

	ctx, cancel := context.WithTimeout(ctx, shs.queryTimeout)
	defer cancel()

	statement, err := shs.database.Prepare(
		"INSERT INTO hospitals (ref, hospital_id, name) VALUES ($1, $2, $3)")
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx, hospital.Ref, hospital.HospitalID, hospital.Name)
	if err != nil {
		logger.LogError("SQL insert for hospital failed", err)
		return err
	}

	return nil
}
