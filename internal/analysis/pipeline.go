package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ai-interview-go/internal/llm"
	"ai-interview-go/internal/parser"
	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/tracing"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

var tracer = otel.Tracer("ai-interview-go/internal/analysis")

// Store 报告读写以及面试分数回写
type Store interface {
	CreateReport(ctx context.Context, report *models.InterviewReport) error
	GetReport(ctx context.Context, reportID string) (*models.InterviewReport, error)
	DeleteReport(ctx context.Context, reportID string) error
	ListReports(ctx context.Context, filter storage.ReportFilter, page storage.Page) ([]models.InterviewReport, int64, error)
	UpdateInterviewScore(ctx context.Context, applicationID string, score float64) error
}

// Request 一次分析请求。ApplicationID 为空表示练习面试
type Request struct {
	JobRole       string
	Transcript    types.Transcript
	ApplicationID string
	OwnerID       string
}

// Pipeline 面试结束后的分析流程
type Pipeline struct {
	store     Store
	chatModel model.BaseChatModel
	timeout   time.Duration
	maxTurns  int
	logger    zerolog.Logger
}

// Option Pipeline 的配置选项
type Option func(*Pipeline)

// WithTimeout 设置单次分析调用的超时
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMaxTurns 限制单次分析的对话轮数，0 表示不限制
func WithMaxTurns(n int) Option {
	return func(p *Pipeline) { p.maxTurns = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline 创建 Pipeline
func NewPipeline(store Store, chatModel model.BaseChatModel, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		chatModel: chatModel,
		timeout:   60 * time.Second,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) validate(req *Request) error {
	const op = "analysis.analyze"
	req.JobRole = strings.TrimSpace(req.JobRole)
	req.ApplicationID = strings.TrimSpace(req.ApplicationID)
	if req.JobRole == "" {
		return types.NewValidationError(op, "缺少 jobRole")
	}
	if err := req.Transcript.Validate(); err != nil {
		return err
	}
	if p.maxTurns > 0 && len(req.Transcript) > p.maxTurns {
		return types.NewValidationError(op, fmt.Sprintf("面试记录超过 %d 轮", p.maxTurns))
	}
	return nil
}

// Analyze 调用文本生成服务分析对话并保存报告。
// 解析失败时不保存任何报告；关联投递的分数回写失败只记日志，不回滚报告
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*models.InterviewReport, error) {
	const op = "analysis.analyze"
	if err := p.validate(&req); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "Analysis.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.role", req.JobRole),
		attribute.Int("transcript.turns", len(req.Transcript)),
		attribute.Bool("report.practice", req.ApplicationID == ""),
	)

	raw, err := llm.Complete(ctx, p.chatModel, p.timeout, op, systemPrompt, buildAnalysisPrompt(req.JobRole, req.Transcript))
	if err != nil {
		tracing.RecordLifecycleError(span, err)
		return nil, err
	}
	feedback, err := parser.ParseFeedback(op, raw)
	if err != nil {
		tracing.RecordLifecycleError(span, err)
		p.logger.Warn().Err(err).Str("application_id", req.ApplicationID).Int("response_len", len(raw)).Msg("分析结果无法解析")
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成报告ID失败: %w", err)
	}
	report := &models.InterviewReport{
		ReportID:     id.String(),
		OwnerID:      req.OwnerID,
		JobRole:      req.JobRole,
		Transcript:   datatypes.JSONSlice[types.Turn](req.Transcript),
		Feedback:     datatypes.NewJSONType(*feedback),
		OverallScore: feedback.OverallScore,
		Status:       types.ReportCompleted,
	}
	if req.ApplicationID != "" {
		appID := req.ApplicationID
		report.ApplicationID = &appID
	}
	if err := p.store.CreateReport(ctx, report); err != nil {
		return nil, err
	}
	log := p.logger.With().Str("report_id", report.ReportID).Str("application_id", req.ApplicationID).Logger()
	log.Info().Float64("overall_score", feedback.OverallScore).Msg("面试报告已生成")

	if req.ApplicationID != "" {
		if err := p.store.UpdateInterviewScore(ctx, req.ApplicationID, feedback.OverallScore); err != nil {
			tracing.RecordLifecycleError(span, err)
			log.Error().Err(err).Msg("回写面试分数失败，报告已保留")
		}
	}
	return report, nil
}

// Get 读取单个报告
func (p *Pipeline) Get(ctx context.Context, reportID string) (*models.InterviewReport, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, types.NewValidationError("analysis.get", "缺少报告ID")
	}
	return p.store.GetReport(ctx, reportID)
}

// ListResult 报告分页结果
type ListResult struct {
	Items    []models.InterviewReport `json:"items"`
	Total    int64                    `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}

func (p *Pipeline) list(ctx context.Context, filter storage.ReportFilter, page storage.Page) (*ListResult, error) {
	page = page.Normalize()
	items, total, err := p.store.ListReports(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.InterviewReport{}
	}
	return &ListResult{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// ListByApplication 招聘方视图，只包含关联了投递的报告。applicationID 为空时返回所有关联投递的报告
func (p *Pipeline) ListByApplication(ctx context.Context, applicationID string, page storage.Page) (*ListResult, error) {
	return p.list(ctx, storage.ReportFilter{ApplicationID: strings.TrimSpace(applicationID)}, page)
}

// ListPractice 练习报告，ownerID 为空时不按所有者过滤
func (p *Pipeline) ListPractice(ctx context.Context, ownerID string, page storage.Page) (*ListResult, error) {
	return p.list(ctx, storage.ReportFilter{Practice: true, OwnerID: strings.TrimSpace(ownerID)}, page)
}

// Delete 删除报告
func (p *Pipeline) Delete(ctx context.Context, reportID string) error {
	if strings.TrimSpace(reportID) == "" {
		return types.NewValidationError("analysis.delete", "缺少报告ID")
	}
	if err := p.store.DeleteReport(ctx, reportID); err != nil {
		return err
	}
	p.logger.Info().Str("report_id", reportID).Msg("报告已删除")
	return nil
}
