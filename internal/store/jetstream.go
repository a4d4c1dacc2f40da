package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/clinicvoice-ai/session-orchestrator/internal/model"
	"github.com/clinicvoice-ai/session-orchestrator/internal/natsclient"
)

const (
	// StreamName is the name of the sessions stream.
	StreamName = "SESSIONS"

	// SubjectPrefix is the prefix for all session subjects.
	SubjectPrefix = "sess"
)

// JetStreamMessageLog persists messages in a NATS JetStream stream. Subjects
// embed the org id, so tenant isolation holds down at the subject filter and
// the publish ack's stream sequence provides the monotonic ordering the
// session contract requires.
type JetStreamMessageLog struct {
	client *natsclient.Client
}

// NewJetStreamMessageLog creates a log backed by the given NATS client.
func NewJetStreamMessageLog(client *natsclient.Client) *JetStreamMessageLog {
	return &JetStreamMessageLog{client: client}
}

// EnsureStream ensures the sessions stream exists with proper configuration.
func (l *JetStreamMessageLog) EnsureStream(ctx context.Context) error {
	js := l.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    100 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "All session messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(orgID, sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, orgID, sessionID, role)
}

// Append implements MessageLog.
func (l *JetStreamMessageLog) Append(ctx context.Context, msg *model.Message) (uint64, error) {
	subject := MessageSubject(msg.OrgID, msg.SessionID, msg.Role)

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := l.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}

// List implements MessageLog.
func (l *JetStreamMessageLog) List(ctx context.Context, orgID, sessionID string, afterSequence uint64, limit int) ([]model.Message, uint64, bool, error) {
	js := l.client.JetStream()

	filterSubject := fmt.Sprintf("%s.%s.%s.msg.>", SubjectPrefix, orgID, sessionID)

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}

	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := js.CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	var messages []model.Message
	var lastSequence uint64

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch messages: %w", err)
	}

	for msg := range batch.Messages() {
		var message model.Message
		if err := json.Unmarshal(msg.Data(), &message); err != nil {
			continue
		}

		meta, err := msg.Metadata()
		if err == nil {
			message.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}

		messages = append(messages, message)
	}

	if batch.Error() != nil && batch.Error() != context.DeadlineExceeded {
		return nil, 0, false, fmt.Errorf("batch error: %w", batch.Error())
	}

	hasMore := len(messages) == limit

	return messages, lastSequence, hasMore, nil
}
