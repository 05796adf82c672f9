package fetcher

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"
)

const observationBatchQuery = `
    SELECT o.obs_id, o.person_id, cn.name,
           COALESCE(an.name, ''), COALESCE(o.value_text, ''), o.value_numeric,
           o.obs_datetime, COALESCE(o.comments, ''),
           o.creator, COALESCE(u.display_name, ''), COALESCE(u.license_number, ''),
           o.location_id, COALESCE(l.name, '')
      FROM obs o
      JOIN concept_name cn ON cn.concept_id = o.concept_id
      LEFT JOIN concept_name an ON an.concept_id = o.value_coded
      LEFT JOIN users u ON u.user_id = o.creator
      LEFT JOIN location l ON l.location_id = o.location_id
     WHERE o.obs_id > ?
     ORDER BY o.obs_id ASC
     LIMIT ?`

const personQuery = `
    SELECT p.person_id, COALESCE(pi.identifier, ''),
           COALESCE(pn.given_name, ''), COALESCE(pn.family_name, ''),
           COALESCE(p.gender, ''), p.birthdate, COALESCE(pa.address1, '')
      FROM person p
      LEFT JOIN person_name pn ON pn.person_id = p.person_id
      LEFT JOIN patient_identifier pi ON pi.patient_id = p.person_id
      LEFT JOIN person_address pa ON pa.person_id = p.person_id
     WHERE p.person_id = ?`

// SqlObservationFetcher issues bounded, ordered queries against one source
// hospital's pool.  Queries are written with ? placeholders and rebound for
// postgres sources.
type SqlObservationFetcher struct {
	database *sql.DB
	driver   string
}

func NewSqlObservationFetcher(database *sql.DB, driver string) *SqlObservationFetcher {
	return &SqlObservationFetcher{database: database, driver: driver}
}

func (sof *SqlObservationFetcher) FetchBatch(ctx context.Context, afterMarker int64, limit int) ([]domain.RawObservation, error) {

	statement, err := sof.database.Prepare(rebind(sof.driver, observationBatchQuery))
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	rows, err := statement.QueryContext(ctx, afterMarker, limit)
	if err != nil {
		logger.LogError("SQL query for observation batch failed", err)
		return nil, err
	}
	defer rows.Close()

	var batch []domain.RawObservation

	for rows.Next() {
		var obs domain.RawObservation
		var numericValue sql.NullFloat64

		err := rows.Scan(&obs.SourceObsID, &obs.SourcePersonID, &obs.ConceptLabel,
			&obs.CodedValue, &obs.TextValue, &numericValue,
			&obs.ObservedAt, &obs.Comment,
			&obs.CreatorID, &obs.CreatorName, &obs.CreatorLicense,
			&obs.LocationID, &obs.LocationName)
		if err != nil {
			logger.LogError("SQL scan failed.  Skipping row.", err)
			continue
		}

		if numericValue.Valid {
			obs.NumericValue = &numericValue.Float64
		}

		batch = append(batch, obs)
	}

	return batch, rows.Err()
}

// SqlPersonReader reads person demographics from the same source pool.
type SqlPersonReader struct {
	database *sql.DB
	driver   string
}

func NewSqlPersonReader(database *sql.DB, driver string) *SqlPersonReader {
	return &SqlPersonReader{database: database, driver: driver}
}

func (spr *SqlPersonReader) FindPerson(ctx context.Context, sourcePersonID int64) (*domain.SourcePerson, error) {

	statement, err := spr.database.Prepare(rebind(spr.driver, personQuery))
	if err != nil {
		logger.LogError("SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	var person domain.SourcePerson
	var birthDate sql.NullTime

	err = statement.QueryRowContext(ctx, sourcePersonID).Scan(
		&person.SourcePersonID, &person.NationalID,
		&person.GivenName, &person.FamilyName,
		&person.Gender, &birthDate, &person.Address)
	if err == sql.ErrNoRows {
		return nil, ErrPersonNotFound
	}
	if err != nil {
		return nil, err
	}

	if birthDate.Valid {
		person.BirthDate = &birthDate.Time
	}

	return &person, nil
}

// rebind converts ? placeholders to the $n form postgres sources expect.
func rebind(driver string, query string) string {
	if driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
