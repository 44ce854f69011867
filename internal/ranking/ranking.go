package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ai-interview-go/internal/constants"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/tracing"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ai-interview-go/internal/ranking")

// Store 批量流转依赖的持久化接口
type Store interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	// ListApplicationsByJob 按 ats_score 降序返回岗位下的投递，statuses 为空表示全部状态
	ListApplicationsByJob(ctx context.Context, jobID string, statuses ...types.ApplicationStatus) ([]models.Application, error)
	UpdateApplicationStatus(ctx context.Context, applicationID string, status types.ApplicationStatus) error
}

// JobCache 岗位元数据缓存
type JobCache interface {
	GetCachedJob(ctx context.Context, jobID string) (*models.Job, error)
	CacheJob(ctx context.Context, job *models.Job) error
}

// Locker 岗位级分布式锁。AcquireLock 未抢到锁时返回空字符串
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, value string) (bool, error)
}

// Notifier 通知投递入口，实现必须立即返回
type Notifier interface {
	Notify(ctx context.Context, app *models.Application, job *models.Job, outcome types.NotificationOutcome)
}

// RankResult 排名更新结果
type RankResult struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Engine 排名与批量状态流转
type Engine struct {
	store    Store
	cache    JobCache
	locker   Locker
	notifier Notifier
	lockTTL  time.Duration
	lockWait time.Duration
	logger   zerolog.Logger
}

// Option Engine 的配置选项
type Option func(*Engine)

func WithJobCache(cache JobCache) Option {
	return func(e *Engine) { e.cache = cache }
}

func WithLocker(locker Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithLockWait 设置等待其他批量操作释放锁的最长时间
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) { e.lockWait = d }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine 创建 Engine
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		lockTTL:  time.Minute,
		lockWait: 10 * time.Second,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func requireJobID(op, jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", types.NewValidationError(op, "缺少 job_id")
	}
	return jobID, nil
}

// withJobLock 在岗位锁内执行 fn。Redis 不可用时直接执行，锁被占用时等待至 lockWait
func (e *Engine) withJobLock(ctx context.Context, op, jobID string, fn func() error) error {
	if e.locker == nil {
		return fn()
	}
	key := fmt.Sprintf(constants.KeyJobBulkLock, jobID)
	deadline := time.Now().Add(e.lockWait)
	for {
		token, err := e.locker.AcquireLock(ctx, key, e.lockTTL)
		if err != nil {
			e.logger.Warn().Err(err).Str("job_id", jobID).Msg("获取岗位锁失败，不加锁继续执行")
			return fn()
		}
		if token != "" {
			defer func() {
				// 用独立的 context 释放，避免请求取消后锁残留到过期
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if _, err := e.locker.ReleaseLock(releaseCtx, key, token); err != nil {
					e.logger.Warn().Err(err).Str("job_id", jobID).Msg("释放岗位锁失败")
				}
			}()
			return fn()
		}
		if time.Now().After(deadline) {
			return types.NewConflictError(op, fmt.Sprintf("岗位 %s 有批量操作正在进行，请稍后重试", jobID))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// ShortlistAll 把岗位下所有 Pending 投递改为 Approved，返回变更数量
func (e *Engine) ShortlistAll(ctx context.Context, jobID string) (int, error) {
	const op = "ranking.shortlist_all"
	jobID, err := requireJobID(op, jobID)
	if err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "Ranking.ShortlistAll")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	changed := 0
	err = e.withJobLock(ctx, op, jobID, func() error {
		apps, err := e.store.ListApplicationsByJob(ctx, jobID, types.StatusPending)
		if err != nil {
			return err
		}
		for i := range apps {
			if err := e.store.UpdateApplicationStatus(ctx, apps[i].ApplicationID, types.StatusApproved); err != nil {
				return fmt.Errorf("更新投递 %s 状态失败: %w", apps[i].ApplicationID, err)
			}
			changed++
		}
		return nil
	})
	tracing.RecordLifecycleError(span, err)
	e.logger.Info().Str("job_id", jobID).Int("approved", changed).Err(err).Msg("批量入围完成")
	return changed, err
}

// sortByRank ats_score 降序，同分时先投递的在前，再按 ID 保证确定性
func sortByRank(apps []models.Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].ATSScore != apps[j].ATSScore {
			return apps[i].ATSScore > apps[j].ATSScore
		}
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].ApplicationID < apps[j].ApplicationID
	})
}

// BulkRankUpdate 按 ats_score 排名，前 shortlistCount 个改为 Approved，其余改为 Rejected，不看原状态
func (e *Engine) BulkRankUpdate(ctx context.Context, jobID string, shortlistCount int) (*RankResult, error) {
	const op = "ranking.bulk_rank_update"
	jobID, err := requireJobID(op, jobID)
	if err != nil {
		return nil, err
	}
	if shortlistCount < 0 {
		return nil, types.NewValidationError(op, "shortlist_count 不能为负数")
	}
	ctx, span := tracer.Start(ctx, "Ranking.BulkRankUpdate")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID), attribute.Int("shortlist.count", shortlistCount))

	result := &RankResult{}
	err = e.withJobLock(ctx, op, jobID, func() error {
		apps, err := e.store.ListApplicationsByJob(ctx, jobID)
		if err != nil {
			return err
		}
		sortByRank(apps)
		for i := range apps {
			target := types.StatusRejected
			if i < shortlistCount {
				target = types.StatusApproved
			}
			if apps[i].Status != target {
				if err := e.store.UpdateApplicationStatus(ctx, apps[i].ApplicationID, target); err != nil {
					return fmt.Errorf("更新投递 %s 状态失败: %w", apps[i].ApplicationID, err)
				}
			}
			if target == types.StatusApproved {
				result.Approved++
			} else {
				result.Rejected++
			}
		}
		return nil
	})
	if err != nil {
		tracing.RecordLifecycleError(span, err)
		return nil, err
	}
	e.logger.Info().Str("job_id", jobID).Int("approved", result.Approved).Int("rejected", result.Rejected).Msg("排名更新完成")
	return result, nil
}

// ApproveAllForInterview 把所有 Approved 投递改为 Interviewing，并为每条变更异步发送面试邀请
func (e *Engine) ApproveAllForInterview(ctx context.Context, jobID string) (int, error) {
	const op = "ranking.approve_all_for_interview"
	jobID, err := requireJobID(op, jobID)
	if err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "Ranking.ApproveAllForInterview")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	changed := 0
	err = e.withJobLock(ctx, op, jobID, func() error {
		apps, err := e.store.ListApplicationsByJob(ctx, jobID, types.StatusApproved)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			return nil
		}
		job, jobOK := e.ResolveJob(ctx, models.UnresolvedJob(jobID)).Job()
		if !jobOK {
			e.logger.Warn().Str("job_id", jobID).Msg("岗位信息不可用，本次流转不发送通知")
		}
		for i := range apps {
			app := apps[i]
			if err := e.store.UpdateApplicationStatus(ctx, app.ApplicationID, types.StatusInterviewing); err != nil {
				return fmt.Errorf("更新投递 %s 状态失败: %w", app.ApplicationID, err)
			}
			changed++
			app.Status = types.StatusInterviewing
			if jobOK && e.notifier != nil {
				e.notifier.Notify(ctx, &app, job, types.OutcomeInterviewInvite)
			}
		}
		return nil
	})
	tracing.RecordLifecycleError(span, err)
	e.logger.Info().Str("job_id", jobID).Int("interviewing", changed).Err(err).Msg("批量邀请面试完成")
	return changed, err
}

// ResolveJob 把未解析的岗位引用解析为实体：先查缓存，再查数据库。查不到时原样返回
func (e *Engine) ResolveJob(ctx context.Context, ref models.JobRef) models.JobRef {
	if ref.IsResolved() || ref.ID() == "" {
		return ref
	}
	if e.cache != nil {
		job, err := e.cache.GetCachedJob(ctx, ref.ID())
		if err == nil && job != nil {
			return models.ResolvedJob(job)
		}
	}
	job, err := e.store.GetJob(ctx, ref.ID())
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			e.logger.Warn().Err(err).Str("job_id", ref.ID()).Msg("查询岗位信息失败")
		}
		return ref
	}
	if e.cache != nil {
		if err := e.cache.CacheJob(ctx, job); err != nil {
			e.logger.Debug().Err(err).Str("job_id", job.JobID).Msg("写入岗位缓存失败")
		}
	}
	return models.ResolvedJob(job)
}
