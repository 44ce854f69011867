package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-interview-go/internal/constants"
	"ai-interview-go/internal/types"

	"github.com/redis/go-redis/v9"
)

// TranscriptStore 面试过程中逐轮保存对话的断点存储
type TranscriptStore interface {
	// Append 追加一轮发言
	Append(ctx context.Context, applicationID string, turn types.Turn) error
	// Load 读取全部发言，会话不存在时返回空切片和 nil
	Load(ctx context.Context, applicationID string) (types.Transcript, error)
	// Clear 删除断点，会话不存在时静默成功
	Clear(ctx context.Context, applicationID string) error
}

// MemoryTranscriptStore 进程内实现，重启即丢失，用于测试和未配置 Redis 的部署
type MemoryTranscriptStore struct {
	mu       sync.RWMutex
	sessions map[string]types.Transcript
}

func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{sessions: make(map[string]types.Transcript)}
}

func (m *MemoryTranscriptStore) Append(_ context.Context, applicationID string, turn types.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[applicationID] = append(m.sessions[applicationID], turn)
	return nil
}

func (m *MemoryTranscriptStore) Load(_ context.Context, applicationID string) (types.Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns, ok := m.sessions[applicationID]
	if !ok {
		return types.Transcript{}, nil
	}
	// 返回副本，防止调用方修改内部状态
	cpy := make(types.Transcript, len(turns))
	copy(cpy, turns)
	return cpy, nil
}

func (m *MemoryTranscriptStore) Clear(_ context.Context, applicationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, applicationID)
	return nil
}

// RedisTranscriptStore 以 Redis List 保存对话断点，每个元素是一轮发言的 JSON
type RedisTranscriptStore struct {
	client *redis.Client
	ttl    time.Duration // 每次追加时刷新，0 表示不过期
}

// NewRedisTranscriptStore 创建 Redis 断点存储
func NewRedisTranscriptStore(client *redis.Client, ttl time.Duration) (*RedisTranscriptStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisTranscriptStore{client: client, ttl: ttl}, nil
}

func (s *RedisTranscriptStore) key(applicationID string) string {
	return fmt.Sprintf(constants.KeyInterviewTranscript, applicationID)
}

func (s *RedisTranscriptStore) Append(ctx context.Context, applicationID string, turn types.Turn) error {
	serialized, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("序列化对话失败 (application=%s): %w", applicationID, err)
	}
	key := s.key(applicationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, serialized)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("保存对话断点失败 (application=%s): %w", applicationID, err)
	}
	return nil
}

func (s *RedisTranscriptStore) Load(ctx context.Context, applicationID string) (types.Transcript, error) {
	items, err := s.client.LRange(ctx, s.key(applicationID), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return types.Transcript{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取对话断点失败 (application=%s): %w", applicationID, err)
	}
	transcript := make(types.Transcript, 0, len(items))
	for _, item := range items {
		var turn types.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("对话断点数据损坏 (application=%s): %w", applicationID, err)
		}
		transcript = append(transcript, turn)
	}
	return transcript, nil
}

func (s *RedisTranscriptStore) Clear(ctx context.Context, applicationID string) error {
	// key 不存在时 Del 返回 0 且 err 为 nil
	if err := s.client.Del(ctx, s.key(applicationID)).Err(); err != nil {
		return fmt.Errorf("删除对话断点失败 (application=%s): %w", applicationID, err)
	}
	return nil
}
