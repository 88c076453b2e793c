package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	service "github.com/okian/uruk/internal/app"
	"github.com/okian/uruk/internal/adapters/repository"
	"github.com/okian/uruk/internal/config"
	"github.com/okian/uruk/internal/domain/intake"
)

type capturingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *capturingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *capturingWriter) Close() error { return nil }

func (w *capturingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestServiceWithRedisAndFanout(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Duplicate.Backend = config.BackendRedis
	cfg.Duplicate.Retention = time.Hour
	cfg.Duplicate.KeyPrefix = "test:jti:"

	memory := repository.NewMemoryStore()
	writer := &capturingWriter{}
	kafkaStore := repository.NewKafkaStore(nil, "uruk.events", repository.WithMessageWriter(writer))

	svc := service.New(cfg,
		service.WithRedisClient(client),
		service.WithStores(memory, kafkaStore),
	)
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() { _ = svc.Stop(ctx) })

	policy, ok := svc.Lookup("Bob")
	require.True(t, ok)

	t.Run("accepted tokens reach every store once", func(t *testing.T) {
		raw := mintSET(uuid.NewString())
		assert.True(t, svc.Process(ctx, raw, policy).Accepted)
		assert.True(t, svc.Process(ctx, raw, policy).Accepted)

		require.Eventually(t, func() bool {
			return memory.Count(ctx) == 1 && writer.count() == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, "fanout", svc.GetStats(ctx)["store"])
	})

	t.Run("replay keys live in redis with the configured retention", func(t *testing.T) {
		keys := mr.Keys()
		require.NotEmpty(t, keys)
		for _, k := range keys {
			assert.Contains(t, k, "test:jti:")
			assert.Equal(t, time.Hour, mr.TTL(k))
		}
	})

	t.Run("an unreachable duplicate store fails closed", func(t *testing.T) {
		before := memory.Count(ctx)
		mr.Close()

		res := svc.Process(ctx, mintSET(uuid.NewString()), policy)
		assert.False(t, res.Accepted)
		assert.True(t, res.Operational)
		assert.Equal(t, intake.CodeDuplicateStoreUnavailable, res.Code)
		assert.Equal(t, "An error occurred when checking for duplicated events.", res.Description)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, before, memory.Count(ctx))
	})
}
