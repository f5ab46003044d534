package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

func sampleEvents() []shared.Event {
	var log shared.EventLog
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	log.Record(shared.EventDocumentPosted, "document", 4, at, map[string]any{"family": "sales_invoice"})
	log.Record(shared.EventJournalPosted, "journal_entry", 9, at, nil)
	return log.Events()
}

func TestRedisPublisherPublishesInOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, "")
	events := sampleEvents()
	require.NoError(t, pub.Publish(ctx, events))

	ch := sub.Channel()
	for _, want := range events {
		select {
		case msg := <-ch:
			var got shared.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
			require.Equal(t, want.ID, got.ID)
			require.Equal(t, want.Name, got.Name)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want.Name)
		}
	}
}

func TestRedisPublisherIgnoresEmptyBatch(t *testing.T) {
	var pub *RedisPublisher
	require.NoError(t, pub.Publish(context.Background(), sampleEvents()))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, NewRedisPublisher(client, "custom").Publish(context.Background(), nil))
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	require.NoError(t, NewLogPublisher(logger).Publish(context.Background(), sampleEvents()))
	require.Contains(t, buf.String(), `"event":"document.posted"`)
	require.Contains(t, buf.String(), `"event":"journal.posted"`)
}
