package services

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// AuditService streams clipboard activity to Kafka for offline analytics.
// It is entirely best-effort: a nil producer or a failed publish only logs.
type AuditService struct {
	producer sarama.SyncProducer
	topic    string
}

type auditEvent struct {
	Action      string `json:"action"`
	ClipboardID string `json:"clipboardId"`
	UserID      string `json:"userId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func NewAuditService(producer sarama.SyncProducer, topic string) *AuditService {
	return &AuditService{
		producer: producer,
		topic:    topic,
	}
}

// Record publishes one activity event keyed by clipboard id so per-entry
// ordering survives partitioning.
func (a *AuditService) Record(action, clipboardID, userID string) {
	if a == nil || a.producer == nil {
		return
	}

	event := auditEvent{
		Action:      action,
		ClipboardID: clipboardID,
		UserID:      userID,
		Timestamp:   time.Now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal audit event", "action", action, "error", err)
		return
	}

	_, _, err = a.producer.SendMessage(&sarama.ProducerMessage{
		Topic: a.topic,
		Key:   sarama.StringEncoder(clipboardID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		slog.Warn("Failed to publish audit event", "action", action, "clipboardID", clipboardID, "error", err)
	}
}
