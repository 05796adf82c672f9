package sync

import (
	"context"
	"errors"

	"github.com/carelink/emr-connector/internal/classify"
	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/fetcher"
	"github.com/carelink/emr-connector/internal/identity"
	"github.com/carelink/emr-connector/internal/platform/logger"
	"github.com/carelink/emr-connector/internal/records"

	"github.com/sirupsen/logrus"
)

type ProcessOutcome int

const (
	OutcomeWritten ProcessOutcome = iota
	OutcomeDuplicate
	OutcomeSkipped
	OutcomeFailed
)

// Pipeline is the per-observation processing chain shared by all three
// orchestrator variants: resolve the person, categorize the observation,
// check for duplicates, write the record.
type Pipeline struct {
	resolver   *identity.Resolver
	classifier *classify.Classifier
	dedup      *records.DedupGuard
	writer     *records.Writer
	events     *EventPublisher
}

func NewPipeline(resolver *identity.Resolver, classifier *classify.Classifier, dedup *records.DedupGuard, writer *records.Writer, events *EventPublisher) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		classifier: classifier,
		dedup:      dedup,
		writer:     writer,
		events:     events,
	}
}

// Process runs one observation through the pipeline.  Failures are
// observation-scoped: a missing source person is a skip, a duplicate is a
// silent skip, and only persistence errors surface as OutcomeFailed.
func (p *Pipeline) Process(ctx context.Context, hospitalID domain.HospitalID, reader fetcher.PersonReader, obs domain.RawObservation) (ProcessOutcome, error) {

	log := logger.Log.WithFields(logrus.Fields{
		"hospital_id":   hospitalID,
		"source_obs_id": obs.SourceObsID})

	resolution, err := p.resolver.Resolve(ctx, hospitalID, obs.SourcePersonID, reader)
	if errors.Is(err, identity.ErrPatientNotFound) {
		log.WithFields(logrus.Fields{"source_person_id": obs.SourcePersonID}).Warn("Source person not found.  Skipping observation.")
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	if resolution.Outcome == identity.Created {
		log.Debug("Observation resolved to a freshly registered patient")
	}

	classified := p.classifier.Categorize(obs)

	duplicate, err := p.dedup.IsDuplicate(ctx, hospitalID, resolution.Patient.Ref, classified)
	if err != nil {
		return OutcomeFailed, err
	}
	if duplicate {
		return OutcomeDuplicate, nil
	}

	record, err := p.writer.Write(ctx, resolution.Patient, classified, hospitalID)
	if err != nil {
		return OutcomeFailed, err
	}

	p.events.PublishRecordSynced(ctx, hospitalID, record)

	return OutcomeWritten, nil
}
