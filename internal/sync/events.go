package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
)

// kafkaWriter is the part of kafka.Writer the publisher uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventPublisher emits sync events to the audit feed.  The feed is an
// opaque sink: the engine never reads it back and a nil publisher (no
// brokers configured) turns every publish into a no-op.
type EventPublisher struct {
	writer kafkaWriter
}

func NewEventPublisher(writer kafkaWriter) *EventPublisher {
	return &EventPublisher{writer: writer}
}

type recordSyncedEvent struct {
	EventID     string            `json:"event_id"`
	EventType   string            `json:"event_type"`
	HospitalID  domain.HospitalID `json:"hospital_id"`
	RecordRef   string            `json:"record_ref"`
	RecordType  domain.RecordType `json:"record_type"`
	SourceObsID int64             `json:"source_obs_id"`
	Timestamp   time.Time         `json:"timestamp"`
}

type cycleCompletedEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Variant   string    `json:"variant"`
	Written   int       `json:"written"`
	Timestamp time.Time `json:"timestamp"`
}

func (ep *EventPublisher) publish(ctx context.Context, key string, event interface{}) {
	if ep == nil || ep.writer == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.LogError("Unable to marshal sync event", err)
		return
	}

	if err := ep.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		logger.LogError("Unable to publish sync event", err)
	}
}

func (ep *EventPublisher) PublishRecordSynced(ctx context.Context, hospitalID domain.HospitalID, record *domain.SyncedRecord) {
	var sourceObsID int64
	if record.SourceObsID != nil {
		sourceObsID = *record.SourceObsID
	}

	ep.publish(ctx, hospitalID.String(), recordSyncedEvent{
		EventID:     uuid.NewString(),
		EventType:   "record_synced",
		HospitalID:  hospitalID,
		RecordRef:   record.Ref,
		RecordType:  record.RecordType,
		SourceObsID: sourceObsID,
		Timestamp:   time.Now(),
	})
}

func (ep *EventPublisher) PublishCycleCompleted(ctx context.Context, variant string, written int) {
	ep.publish(ctx, variant, cycleCompletedEvent{
		EventID:   uuid.NewString(),
		EventType: "cycle_completed",
		Variant:   variant,
		Written:   written,
		Timestamp: time.Now(),
	})
}
