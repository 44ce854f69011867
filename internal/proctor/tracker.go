package proctor

import (
	"context"
	"strings"
	"sync"
	"time"

	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
)

// Counter 跨实例共享的违规计数，由 storage.Redis 实现
type Counter interface {
	IncrViolation(ctx context.Context, applicationID string) (int64, error)
	ResetViolations(ctx context.Context, applicationID string) error
}

// Terminator 查询并终止面试，由 interview.Orchestrator 实现
type Terminator interface {
	// Active 投递是否处于 Interviewing
	Active(ctx context.Context, applicationID string) (bool, error)
	Complete(ctx context.Context, applicationID string) (*models.Application, error)
}

// SessionTracker 每个投递一个监考计数。Redis 可用时计数在 Redis 中，否则退回进程内 Monitor
type SessionTracker struct {
	counter     Counter
	terminator  Terminator
	max         int
	autoDismiss time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewSessionTracker 创建 SessionTracker，counter 可以为 nil
func NewSessionTracker(counter Counter, terminator Terminator, maxViolations int, autoDismiss time.Duration, logger zerolog.Logger) *SessionTracker {
	if maxViolations < 1 {
		maxViolations = 3
	}
	if autoDismiss <= 0 {
		autoDismiss = DefaultAutoDismiss
	}
	return &SessionTracker{
		counter:     counter,
		terminator:  terminator,
		max:         maxViolations,
		autoDismiss: autoDismiss,
		logger:      logger,
		monitors:    make(map[string]*Monitor),
	}
}

func (t *SessionTracker) localMonitor(applicationID string) *Monitor {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.monitors[applicationID]
	if !ok {
		m = NewMonitor(t.max, t.autoDismiss)
		t.monitors[applicationID] = m
	}
	return m
}

// Report 处理一次客户端上报的违规。只接受进行中的面试，
// 计数恰好达到上限的那一次结束面试，结束失败只记录日志
func (t *SessionTracker) Report(ctx context.Context, applicationID string, kind ViolationKind) (Decision, error) {
	const op = "proctor.report"
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return Decision{}, types.NewValidationError(op, "缺少 application_id")
	}
	log := t.logger.With().Str("application_id", applicationID).Str("kind", string(kind)).Logger()

	if t.terminator != nil {
		active, err := t.terminator.Active(ctx, applicationID)
		if err != nil {
			return Decision{}, err
		}
		if !active {
			log.Info().Msg("面试未在进行中，忽略监考事件")
			return Decision{}, types.NewConflictError(op, "面试未在进行中")
		}
	}

	var d Decision
	counted := false
	if t.counter != nil {
		n, err := t.counter.IncrViolation(ctx, applicationID)
		if err != nil {
			log.Warn().Err(err).Msg("违规计数写入 Redis 失败，改用进程内计数")
		} else {
			d = Evaluate(int(n), t.max, t.autoDismiss)
			counted = true
		}
	}
	if !counted {
		d = t.localMonitor(applicationID).Record(kind)
	}

	if !d.Terminated() {
		log.Info().Int("violations", d.Violations).Bool("final_warning", d.FinalWarning).Msg("监考警告")
		return d, nil
	}

	if d.Violations != t.max {
		// 并发上报时只有达到上限的那一次负责结束面试
		return d, nil
	}
	log.Warn().Int("violations", d.Violations).Msg("违规次数达到上限，终止面试")
	if t.terminator != nil {
		if _, err := t.terminator.Complete(ctx, applicationID); err != nil {
			log.Error().Err(err).Msg("终止面试失败")
		}
	}
	return d, nil
}

// Reset 清空某个投递的违规计数，例如重新开始面试时
func (t *SessionTracker) Reset(ctx context.Context, applicationID string) {
	t.mu.Lock()
	delete(t.monitors, applicationID)
	t.mu.Unlock()
	if t.counter != nil {
		if err := t.counter.ResetViolations(ctx, applicationID); err != nil {
			t.logger.Warn().Err(err).Str("application_id", applicationID).Msg("清空违规计数失败")
		}
	}
}
