package redis_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	numberredis "ms-raffle/internal/reservation/redis"
)

// TestNumberLockIntegration exercises the lock against a real Redis container.
func TestNumberLockIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{
		Addr:     host + ":" + port.Port(),
		Password: "",
		DB:       0,
	})
	lock := numberredis.NewRedis(client)

	raffleID := "raffle-integration"
	ttl := time.Minute

	t.Run("lock and conflict", func(t *testing.T) {
		ok, conflicts, err := lock.LockNumbers(raffleID, []int{1, 2, 3}, "purchase-1", ttl)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, conflicts)

		// A second purchase overlapping on 2 must fail and report the conflict.
		ok, conflicts, err = lock.LockNumbers(raffleID, []int{2, 4}, "purchase-2", ttl)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []int{2}, conflicts)

		// The failed attempt must not leave 4 locked behind.
		available, err := lock.CheckNumberAvailability(raffleID, 4)
		require.NoError(t, err)
		assert.True(t, available)
	})

	t.Run("unlock respects ownership", func(t *testing.T) {
		// purchase-2 cannot release purchase-1's locks.
		err := lock.UnlockNumbers(raffleID, []int{1, 2, 3}, "purchase-2")
		require.NoError(t, err)

		available, err := lock.CheckNumberAvailability(raffleID, 1)
		require.NoError(t, err)
		assert.False(t, available)

		// The owner can.
		err = lock.UnlockNumbers(raffleID, []int{1, 2, 3}, "purchase-1")
		require.NoError(t, err)

		ok, _, err := lock.LockNumbers(raffleID, []int{1, 2, 3}, "purchase-2", ttl)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lock carries a TTL", func(t *testing.T) {
		ok, _, err := lock.LockNumbers(raffleID, []int{50}, "purchase-3", 2*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		remaining, err := client.TTL(ctx, numberredis.LockKey(raffleID, 50)).Result()
		require.NoError(t, err)
		assert.Greater(t, remaining, time.Duration(0))
		assert.LessOrEqual(t, remaining, 2*time.Second)
	})
}
