//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap/zaptest"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/events"
	"example.com/wellness/internal/outbox"
	persistence "example.com/wellness/internal/persistence/postgres"
	"example.com/wellness/internal/pgtest"
)

type staticRegistry struct{ id int }

func (r staticRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	return r.id, nil
}

func TestSyncCompletedFlowsFromOutboxToEventLog(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	pool := pgtest.Start(t)

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	topic := "wellness.sync_completed.it"
	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	repo := persistence.NewRepository(pool, persistence.WithTopic(events.TypeSyncCompleted, topic))
	steps := int64(9000)
	require.NoError(t, repo.ReplaceAll(ctx, persistence.DefaultTable,
		[]domain.DailyMetricRecord{{Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Steps: &steps}},
		&events.Envelope{
			Type:        events.TypeSyncCompleted,
			AggregateID: "run-kafka",
			Payload: events.SyncCompleted{
				RunID:       "run-kafka",
				Trigger:     "manual",
				Table:       persistence.DefaultTable,
				Rows:        1,
				WindowStart: "2024-06-01",
				WindowEnd:   "2024-06-01",
				Endpoints:   []string{"daily_activity"},
				CompletedAt: time.Now().UTC(),
			},
		}))

	producer := outbox.NewKafkaProducer([]string{broker})
	defer producer.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	dispatcher := outbox.NewDispatcher(pool, producer, staticRegistry{id: 7}, 100*time.Millisecond, 10,
		outbox.WithLogger(zaptest.NewLogger(t)))
	go dispatcher.Start(runCtx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "wellness-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	handler := NewPersistenceHandler(pool)
	proc := NewProcessor(reader, handler)
	go func() {
		_ = proc.Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		runs, err := handler.Recent(ctx, 5)
		return err == nil && len(runs) == 1 && runs[0].RunID == "run-kafka"
	}, 60*time.Second, 500*time.Millisecond)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	stop()
	dispatcher.Wait()
}
