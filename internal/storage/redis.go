package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-interview-go/internal/config"
	"ai-interview-go/internal/constants"
	"ai-interview-go/internal/storage/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

var redisTracer = otel.Tracer("ai-interview-go/storage/redis")

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// SessionTTL 监考计数和对话断点的保留时间
func (r *Redis) SessionTTL() time.Duration {
	if r.config == nil || r.config.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(r.config.SessionTTLHours) * time.Hour
}

func (r *Redis) jobCacheTTL() time.Duration {
	if r.config == nil || r.config.JobCacheTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(r.config.JobCacheTTLMinutes) * time.Minute
}

// BulkLockTimeout 批量操作锁的过期时间
func (r *Redis) BulkLockTimeout() time.Duration {
	if r.config == nil || r.config.BulkLockTimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.config.BulkLockTimeoutSeconds) * time.Second
}

// AcquireLock 尝试获取一个分布式锁，未抢到锁时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return lockValue, nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证只删除自己持有的锁
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	script := `
        if redis.call("get", KEYS[1]) == ARGV[1] then
            return redis.call("del", KEYS[1])
        else
            return 0
        end
    `
	res, err := r.Client.Eval(ctx, script, []string{lockKey}, lockValue).Result()
	if err != nil {
		return false, err
	}
	if released, ok := res.(int64); ok && released == 1 {
		return true, nil
	}
	return false, nil
}

// CacheJob 缓存岗位元数据，通知渲染时优先读缓存
func (r *Redis) CacheJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return nil
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化岗位缓存失败: %w", err)
	}
	return r.Client.Set(ctx, fmt.Sprintf(constants.KeyJobMeta, job.JobID), payload, r.jobCacheTTL()).Err()
}

// GetCachedJob 读取岗位缓存，未命中时返回 redis.Nil
func (r *Redis) GetCachedJob(ctx context.Context, jobID string) (*models.Job, error) {
	raw, err := r.Client.Get(ctx, fmt.Sprintf(constants.KeyJobMeta, jobID)).Bytes()
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("反序列化岗位缓存失败: %w", err)
	}
	return &job, nil
}

// IncrViolation 原子地累加某场面试的违规次数并刷新过期时间
func (r *Redis) IncrViolation(ctx context.Context, applicationID string) (int64, error) {
	ctx, span := redisTracer.Start(ctx, "Redis.IncrViolation", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	key := fmt.Sprintf(constants.KeyInterviewViolations, applicationID)
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "INCR"),
		attribute.String("db.redis.key", key),
	)

	pipe := r.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.SessionTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("累加违规次数失败: %w", err)
	}
	span.SetAttributes(attribute.Int64("violation.count", incr.Val()))
	return incr.Val(), nil
}

// GetViolations 读取当前违规次数，没有记录时为 0
func (r *Redis) GetViolations(ctx context.Context, applicationID string) (int64, error) {
	n, err := r.Client.Get(ctx, fmt.Sprintf(constants.KeyInterviewViolations, applicationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// ResetViolations 清空违规计数
func (r *Redis) ResetViolations(ctx context.Context, applicationID string) error {
	return r.Client.Del(ctx, fmt.Sprintf(constants.KeyInterviewViolations, applicationID)).Err()
}
