// Package kafka exports audit records to Kafka, one topic per event category
// (<prefix>.compliance, <prefix>.security, <prefix>.operations). Records are
// keyed by entity so a consumer sees one entity's history in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "taskguard/pkg/platform/audit"
)

// Config holds producer settings.
type Config struct {
	Brokers     []string
	TopicPrefix string
	Partitions  int32
	Replication int16
}

// Sink produces audit records synchronously.
type Sink struct {
	client *kgo.Client
	prefix string
}

// message is the wire form of a record.
type message struct {
	ID            string            `json:"id"`
	Category      string            `json:"category"`
	Action        string            `json:"action"`
	ActorID       string            `json:"actor_id,omitempty"`
	ActorDetached bool              `json:"actor_detached,omitempty"`
	EntityType    string            `json:"entity_type"`
	EntityID      string            `json:"entity_id,omitempty"`
	SourceAddress string            `json:"source_address,omitempty"`
	UserAgent     string            `json:"user_agent,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	PrevHash      string            `json:"prev_hash"`
	Hash          string            `json:"hash"`
}

// New connects a producer. It does not create topics; call EnsureTopics.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "taskguard.audit"
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(5),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: create client: %w", err)
	}
	return &Sink{client: client, prefix: prefix}, nil
}

// Topic returns the topic records of category c are written to.
func (s *Sink) Topic(c audit.EventCategory) string {
	return s.prefix + "." + string(c)
}

// Topics lists every topic the sink writes to.
func (s *Sink) Topics() []string {
	return []string{
		s.Topic(audit.CategoryCompliance),
		s.Topic(audit.CategorySecurity),
		s.Topic(audit.CategoryOperations),
	}
}

// EnsureTopics creates missing topics. Existing topics are left alone.
func (s *Sink) EnsureTopics(ctx context.Context, partitions int32, replication int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}
	adm := kadm.NewClient(s.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, s.Topics()...)
	if err != nil {
		return fmt.Errorf("kafka sink: create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("kafka sink: create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Publish writes rec and waits for the broker ack.
func (s *Sink) Publish(ctx context.Context, rec audit.Record) error {
	kr, err := s.encode(rec)
	if err != nil {
		return err
	}
	if err := s.client.ProduceSync(ctx, kr).FirstErr(); err != nil {
		return fmt.Errorf("kafka sink: produce %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Sink) encode(rec audit.Record) (*kgo.Record, error) {
	msg := message{
		ID:            rec.ID,
		Category:      string(rec.Action.Category()),
		Action:        string(rec.Action),
		ActorDetached: rec.ActorDetached,
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		SourceAddress: rec.SourceAddress,
		UserAgent:     rec.UserAgent,
		RequestID:     rec.RequestID,
		Metadata:      rec.Metadata,
		Timestamp:     rec.Timestamp.UTC(),
		PrevHash:      rec.PrevHash,
		Hash:          rec.Hash,
	}
	if !rec.ActorID.IsNil() {
		msg.ActorID = rec.ActorID.String()
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: encode %s: %w", rec.ID, err)
	}

	key := rec.EntityType + ":" + rec.EntityID
	return &kgo.Record{
		Topic: s.Topic(rec.Action.Category()),
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(rec.Action)},
			{Key: "record_id", Value: []byte(rec.ID)},
		},
		Timestamp: rec.Timestamp,
	}, nil
}

// Close flushes buffered records and closes the client.
func (s *Sink) Close(ctx context.Context) error {
	err := s.client.Flush(ctx)
	s.client.Close()
	return err
}
