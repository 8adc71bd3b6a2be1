package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaStore publishes events to a Kafka topic, keyed by document id so all
// events of one document land on one partition in order.
type KafkaStore struct {
	client *kgo.Client
	topic  string
}

// NewKafkaStore connects a producer to brokers. Extra kgo options are
// appended after the defaults.
func NewKafkaStore(brokers []string, topic string, opts ...kgo.Opt) (*KafkaStore, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaStore{client: client, topic: topic}, nil
}

func (k *KafkaStore) Append(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(e.DocumentID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (k *KafkaStore) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	admin := kadm.NewClient(k.client)
	resp, err := admin.CreateTopics(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Ping checks broker connectivity.
func (k *KafkaStore) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

func (k *KafkaStore) Close() {
	k.client.Close()
}
