//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"approvals/pkg/testutil/containers"
)

func TestKafkaStore_PublishesKeyedEvents(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	topic := "approvals.audit.test"
	store, err := NewKafkaStore([]string{rp.Broker}, topic)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureTopic(ctx, 1, 1))
	// A second call sees TopicAlreadyExists and succeeds.
	require.NoError(t, store.EnsureTopic(ctx, 1, 1))

	pub := NewPublisher(store)
	require.NoError(t, pub.Emit(ctx, Event{Type: EventDocumentApproved, DocumentID: "doc-1", Status: "approved"}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)

	rec := records[0]
	assert.Equal(t, "doc-1", string(rec.Key))
	var got Event
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, EventDocumentApproved, got.Type)
	assert.Equal(t, "approved", got.Status)
}
