// Package kafka implements audit.Store on a Kafka topic. Events are
// published as JSON keyed by transaction id so per-transaction ordering is
// preserved inside a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "github.com/agirails/actp-kernel-sub001/pkg/platform/audit"
)

type Store struct {
	client *kgo.Client
	topic  string
}

// payload is the JSON structure published to Kafka. Field names are stable;
// downstream consumers match on them.
type payload struct {
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	TxID      string `json:"tx_id,omitempty"`
	Action    string `json:"action"`
	OldState  string `json:"old_state,omitempty"`
	NewState  string `json:"new_state,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// New connects a producer to the given brokers. The topic must already
// exist; topic management is a deployment concern.
func New(brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

// Append publishes one event synchronously. Callers that cannot tolerate
// broker latency should wrap this store with the async publisher.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	p := payload{
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Action:    event.Action,
		OldState:  event.OldState,
		NewState:  event.NewState,
		Amount:    event.Amount,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	}
	if !event.Actor.IsNil() {
		p.Actor = event.Actor.String()
	}
	if !event.TxID.IsZero() {
		p.TxID = event.TxID.String()
	}

	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(p.TxID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.client.Close()
	return nil
}
