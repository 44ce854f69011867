package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-interview-go/internal/identity"
	"ai-interview-go/internal/llm"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/tracing"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ai-interview-go/internal/interview")

// Store 面试流程依赖的投递读写
type Store interface {
	GetApplication(ctx context.Context, applicationID string) (*models.Application, error)
	StartInterview(ctx context.Context, applicationID string, startedAt time.Time) error
	// CompleteInterview 条件更新 Interviewing -> CompletedInterview，返回是否发生了变化
	CompleteInterview(ctx context.Context, applicationID string) (bool, error)
}

// Verifier 身份核验，由 identity.Gate 实现
type Verifier interface {
	Verify(ctx context.Context, descriptor types.Descriptor, applicationID, userID string) (*identity.Result, error)
}

// QuestionContext 生成下一题所需的上下文
type QuestionContext struct {
	CandidateName  string `json:"candidateName"`
	JobRole        string `json:"jobRole"`
	JobDescription string `json:"jobDescription"`
	ResumeSummary  string `json:"resumeSummary,omitempty"`
}

// StartRequest 开始面试。Descriptor 非空或开启强制核验时会先经过身份核验
type StartRequest struct {
	ApplicationID string
	Descriptor    types.Descriptor
	UserID        string
}

// Orchestrator 面试会话编排。出题是无状态的，每次调用都带上完整对话
type Orchestrator struct {
	store           Store
	chatModel       model.BaseChatModel
	verifier        Verifier
	requireIdentity bool
	checkpoints     TranscriptStore
	timeout         time.Duration
	now             func() time.Time
	logger          zerolog.Logger
}

// Option Orchestrator 的配置选项
type Option func(*Orchestrator)

// WithIdentityGate 设置身份核验，required 为 true 时未提交特征向量也会被拒绝
func WithIdentityGate(v Verifier, required bool) Option {
	return func(o *Orchestrator) {
		o.verifier = v
		o.requireIdentity = required
	}
}

// WithCheckpoints 开启逐轮对话断点
func WithCheckpoints(store TranscriptStore) Option {
	return func(o *Orchestrator) { o.checkpoints = store }
}

// WithTimeout 设置单次出题的超时
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator 创建 Orchestrator
func NewOrchestrator(store Store, chatModel model.BaseChatModel, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		chatModel: chatModel,
		timeout:   60 * time.Second,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CheckpointsEnabled 是否开启了对话断点
func (o *Orchestrator) CheckpointsEnabled() bool {
	return o.checkpoints != nil
}

// Start 开始面试：状态置为 Interviewing 并记录开始时间
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*models.Application, error) {
	const op = "interview.start"
	id := strings.TrimSpace(req.ApplicationID)
	if id == "" {
		return nil, types.NewValidationError(op, "缺少 application_id")
	}
	ctx, span := tracer.Start(ctx, "Interview.Start")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", id))

	if _, err := o.store.GetApplication(ctx, id); err != nil {
		return nil, err
	}

	if len(req.Descriptor) > 0 || o.requireIdentity {
		if o.verifier == nil {
			return nil, types.NewValidationError(op, "未配置身份核验")
		}
		if len(req.Descriptor) == 0 {
			return nil, types.NewValidationError(op, "开始面试前需要完成身份核验")
		}
		res, err := o.verifier.Verify(ctx, req.Descriptor, id, req.UserID)
		if err != nil {
			return nil, err
		}
		if res.NeedsRegistration {
			return nil, types.NewValidationError(op, "尚未登记身份特征，请先完成登记")
		}
		if !res.Match {
			o.logger.Warn().Str("application_id", id).Float64("distance", res.Distance).Msg("身份核验未通过")
			return nil, types.NewValidationError(op, "身份核验未通过")
		}
		span.SetAttributes(attribute.Float64("identity.distance", res.Distance))
	}

	if err := o.store.StartInterview(ctx, id, o.now()); err != nil {
		return nil, err
	}
	o.logger.Info().Str("application_id", id).Msg("面试开始")
	return o.store.GetApplication(ctx, id)
}

// NextQuestion 根据上下文和已有对话生成一道题，空对话时生成开场题
func (o *Orchestrator) NextQuestion(ctx context.Context, qc QuestionContext, history []types.Turn) (string, error) {
	const op = "interview.next_question"
	qc.CandidateName = strings.TrimSpace(qc.CandidateName)
	qc.JobRole = strings.TrimSpace(qc.JobRole)
	if qc.CandidateName == "" || qc.JobRole == "" {
		return "", types.NewValidationError(op, "缺少候选人姓名或岗位名称")
	}
	if len(history) > 0 {
		if err := types.Transcript(history).Validate(); err != nil {
			return "", err
		}
	}

	style := StyleFor(history)
	ctx, span := tracer.Start(ctx, "Interview.NextQuestion")
	defer span.End()
	span.SetAttributes(attribute.String("question.style", string(style)), attribute.Int("history.turns", len(history)))

	raw, err := llm.Complete(ctx, o.chatModel, o.timeout, op, systemPrompt, buildQuestionPrompt(qc, history, style))
	if err != nil {
		tracing.RecordLifecycleError(span, err)
		return "", err
	}
	question := cleanQuestion(raw)
	if question == "" {
		return "", types.NewExternalServiceError(op, "文本生成服务返回了空问题", nil)
	}
	o.logger.Debug().Str("style", string(style)).Int("history_turns", len(history)).Msg("已生成面试问题")
	return question, nil
}

// Complete 结束面试，评分交给异步分析。
// 只有 Interviewing 可以结束；已经是 CompletedInterview 时原样返回，其他状态返回 ConflictError
func (o *Orchestrator) Complete(ctx context.Context, applicationID string) (*models.Application, error) {
	const op = "interview.complete"
	id := strings.TrimSpace(applicationID)
	if id == "" {
		return nil, types.NewValidationError(op, "缺少 application_id")
	}
	changed, err := o.store.CompleteInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	app, err := o.store.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed && app.Status != types.StatusCompletedInterview {
		return nil, types.NewConflictError(op, fmt.Sprintf("投递 %s 当前状态为 %s，没有进行中的面试", id, app.Status))
	}
	if changed {
		o.logger.Info().Str("application_id", id).Msg("面试结束")
	}
	return app, nil
}

// Active 投递是否处于面试中
func (o *Orchestrator) Active(ctx context.Context, applicationID string) (bool, error) {
	app, err := o.store.GetApplication(ctx, strings.TrimSpace(applicationID))
	if err != nil {
		return false, err
	}
	return app.Status == types.StatusInterviewing, nil
}

// AppendTurn 保存一轮发言到断点存储
func (o *Orchestrator) AppendTurn(ctx context.Context, applicationID string, turn types.Turn) error {
	const op = "interview.append_turn"
	if o.checkpoints == nil {
		return types.NewValidationError(op, "未开启对话断点")
	}
	if strings.TrimSpace(applicationID) == "" {
		return types.NewValidationError(op, "缺少 application_id")
	}
	if err := (types.Transcript{turn}).Validate(); err != nil {
		return err
	}
	return o.checkpoints.Append(ctx, applicationID, turn)
}

// Transcript 读取断点中的完整对话
func (o *Orchestrator) Transcript(ctx context.Context, applicationID string) (types.Transcript, error) {
	if o.checkpoints == nil {
		return nil, types.NewValidationError("interview.transcript", "未开启对话断点")
	}
	return o.checkpoints.Load(ctx, applicationID)
}
