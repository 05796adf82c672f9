package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/fetcher"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/records"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// ErrPatientNotFound is returned when the source person record itself is
// missing.  The caller skips the observation and continues the batch.
var ErrPatientNotFound = errors.New("source person could not be resolved to a patient")

type Outcome int

const (
	Matched Outcome = iota
	Created
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Created:
		return "created"
	default:
		return "not_found"
	}
}

// Resolution is the tagged result of a resolve call, so callers and tests
// can tell "found" from "just created" deterministically.
type Resolution struct {
	Outcome Outcome
	Patient *domain.Patient
}

// Resolver maps a source person reference to a destination patient,
// auto-registering one when no match exists.  A small LRU keyed by
// (hospital, source person id) makes auto-registration idempotent within a
// run even if the same person shows up several times in a batch.
type Resolver struct {
	patients records.PatientStore
	cache    *lru.Cache[string, string]
	metrics  *resolverMetrics
}

type resolverMetrics struct {
	resolutionCounter *prometheus.CounterVec
}

var sharedResolverMetrics *resolverMetrics

func init() {
	sharedResolverMetrics = new(resolverMetrics)

	sharedResolverMetrics.resolutionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emr_connector_identity_resolution_count",
		Help: "The number of identity resolutions per outcome",
	}, []string{"outcome"})
}

func NewResolver(patients records.PatientStore, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		patients: patients,
		cache:    cache,
		metrics:  sharedResolverMetrics,
	}, nil
}

// Resolve finds or creates the destination patient for a source person.
// Precedence: cached resolution, strong (national id) match, exact name
// match, partial name match, family-name-only match, auto-registration.
func (r *Resolver) Resolve(ctx context.Context, hospitalID domain.HospitalID, sourcePersonID int64, reader fetcher.PersonReader) (Resolution, error) {

	cacheKey := fmt.Sprintf("%s:%d", hospitalID, sourcePersonID)
	if ref, ok := r.cache.Get(cacheKey); ok {
		patient, err := r.patients.FindByRef(ctx, ref)
		if err == nil {
			return Resolution{Outcome: Matched, Patient: patient}, nil
		}
	}

	person, err := reader.FindPerson(ctx, sourcePersonID)
	if errors.Is(err, fetcher.ErrPersonNotFound) {
		r.metrics.resolutionCounter.With(prometheus.Labels{"outcome": NotFound.String()}).Inc()
		return Resolution{Outcome: NotFound}, ErrPatientNotFound
	}
	if err != nil {
		return Resolution{}, err
	}

	patient, err := r.matchExisting(ctx, person)
	if err != nil {
		return Resolution{}, err
	}

	if patient != nil {
		r.cache.Add(cacheKey, patient.Ref)
		r.metrics.resolutionCounter.With(prometheus.Labels{"outcome": Matched.String()}).Inc()
		return Resolution{Outcome: Matched, Patient: patient}, nil
	}

	patient, err = r.register(ctx, hospitalID, person)
	if err != nil {
		return Resolution{}, err
	}

	r.cache.Add(cacheKey, patient.Ref)
	r.metrics.resolutionCounter.With(prometheus.Labels{"outcome": Created.String()}).Inc()
	return Resolution{Outcome: Created, Patient: patient}, nil
}

func (r *Resolver) matchExisting(ctx context.Context, person *domain.SourcePerson) (*domain.Patient, error) {

	if person.NationalID != "" {
		patient, err := r.patients.FindByNationalID(ctx, person.NationalID)
		if err == nil {
			return patient, nil
		}
		if !errors.Is(err, records.ErrNotFound) {
			return nil, err
		}
	}

	if person.GivenName == "" && person.FamilyName == "" {
		return nil, nil
	}

	patient, err := r.patients.FindByFullName(ctx, person.GivenName, person.FamilyName)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, records.ErrNotFound) {
		return nil, err
	}

	patient, err = r.patients.FindByNameLike(ctx, person.GivenName, person.FamilyName)
	if err == nil {
		return patient, nil
	}
	if !errors.Is(err, records.ErrNotFound) {
		return nil, err
	}

	if person.FamilyName != "" {
		patient, err = r.patients.FindByFamilyName(ctx, person.FamilyName)
		if err == nil {
			return patient, nil
		}
		if !errors.Is(err, records.ErrNotFound) {
			return nil, err
		}
	}

	return nil, nil
}

func (r *Resolver) register(ctx context.Context, hospitalID domain.HospitalID, person *domain.SourcePerson) (*domain.Patient, error) {

	patient := &domain.Patient{
		Ref:        uuid.NewString(),
		NationalID: person.NationalID,
		GivenName:  person.GivenName,
		FamilyName: person.FamilyName,
		Gender:     person.Gender,
		BirthDate:  person.BirthDate,
		Address:    person.Address,
		ExternalID: fmt.Sprintf("%s:%d", hospitalID, person.SourcePersonID),
	}

	if patient.NationalID == "" {
		patient.NationalID = "EMR-" + uuid.NewString()
	}

	patient.Email = patient.Ref + "@sync.invalid"

	oneTimeCredential := uuid.NewString()

	if err := r.patients.Create(ctx, patient); err != nil {
		return nil, err
	}

	// The generated credential is logged exactly once, for operational
	// handoff to the surrounding application.
	logger.Log.WithFields(logrus.Fields{
		"patient_ref":         patient.Ref,
		"hospital_id":         hospitalID,
		"source_person_id":    person.SourcePersonID,
		"name":                person.FullName(),
		"one_time_credential": oneTimeCredential}).Info("Auto-registered a patient")

	return patient, nil
}
