package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"cardshield/fraud-api/internal/store"
)

// newRedisClient starts a throwaway Redis container. Skipped in -short mode
// or when no Docker daemon is reachable.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := store.Connect(ctx, endpoint, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_Store(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	s := store.NewRedis(client, "test", 3)

	for i := 1; i <= 4; i++ {
		total := 20.0
		if i%2 == 0 {
			total = 75
		}
		require.NoError(t, s.Record(ctx, newScored(fmt.Sprintf("tx-%d", i), total)))
	}

	t.Run("recent is newest first and trimmed", func(t *testing.T) {
		recent, err := s.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"tx-4", "tx-3", "tx-2"}, ids(recent))
		assert.Equal(t, "120", recent[0].Transaction.Amount.String())
	})

	t.Run("get", func(t *testing.T) {
		got, err := s.Get(ctx, "tx-3")
		require.NoError(t, err)
		assert.Equal(t, "tx-3", got.Transaction.ID)

		_, err = s.Get(ctx, "tx-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("alerts", func(t *testing.T) {
		alerts, err := s.Alerts(ctx, 5)
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, "tx-4", alerts[0].TransactionID)
	})

	t.Run("statistics", func(t *testing.T) {
		stats, err := s.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Total)
		assert.Equal(t, 2, stats.Fraud)
		assert.Equal(t, 50.0, stats.DetectionRate)
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, s.Reset(ctx))
		recent, err := s.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, recent)
		stats, err := s.Statistics(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
	})
}

func TestRedis_DeadLetterQueue(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	q := store.NewDeadLetterQueue(client, "test", zap.NewNop())

	require.NoError(t, q.Send(ctx, nil))
	require.NoError(t, q.Send(ctx, []store.DeadLetter{
		{Key: "k1", Value: "{", Topic: "transactions", Reason: "invalid json"},
		{Key: "k2", Value: "{}", Topic: "transactions", Reason: "validation failed"},
	}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
