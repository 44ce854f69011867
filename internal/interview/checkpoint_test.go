package interview

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"ai-interview-go/internal/types"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要本地 Redis，连不上时跳过
func newTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis 不可用 (%s): %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisTranscriptStore(t *testing.T) {
	client := newTestRedis(t)
	store, err := NewRedisTranscriptStore(client, time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	appID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = store.Clear(ctx, appID) })

	empty, err := store.Load(ctx, appID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Append(ctx, appID, types.Turn{Speaker: types.SpeakerInterviewer, Text: "Q1"}))
	require.NoError(t, store.Append(ctx, appID, types.Turn{Speaker: types.SpeakerCandidate, Text: "A1"}))

	got, err := store.Load(ctx, appID)
	require.NoError(t, err)
	assert.Equal(t, types.Transcript{
		{Speaker: types.SpeakerInterviewer, Text: "Q1"},
		{Speaker: types.SpeakerCandidate, Text: "A1"},
	}, got)

	ttl, err := client.TTL(ctx, store.key(appID)).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0)

	require.NoError(t, store.Clear(ctx, appID))
	got, err = store.Load(ctx, appID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewRedisTranscriptStore_NilClient(t *testing.T) {
	_, err := NewRedisTranscriptStore(nil, 0)
	assert.Error(t, err)
}
