package handler

import (
	"context"
	"strconv"

	"ai-interview-go/internal/analysis"
	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ReportService 面试分析与报告查询，由 analysis.Pipeline 实现
type ReportService interface {
	Analyze(ctx context.Context, req analysis.Request) (*models.InterviewReport, error)
	Get(ctx context.Context, reportID string) (*models.InterviewReport, error)
	ListByApplication(ctx context.Context, applicationID string, page storage.Page) (*analysis.ListResult, error)
	ListPractice(ctx context.Context, ownerID string, page storage.Page) (*analysis.ListResult, error)
	Delete(ctx context.Context, reportID string) error
}

// AnalysisQueue 异步分析队列，由 analysis.Queue 实现
type AnalysisQueue interface {
	Enqueue(ctx context.Context, req analysis.Request) error
}

type ReportHandler struct {
	reports ReportService
	queue   AnalysisQueue
}

func NewReportHandler(reports ReportService, queue AnalysisQueue) *ReportHandler {
	return &ReportHandler{reports: reports, queue: queue}
}

type analyzeRequest struct {
	JobRole       string           `json:"job_role"`
	Transcript    types.Transcript `json:"transcript"`
	ApplicationID string           `json:"application_id"`
	OwnerID       string           `json:"owner_id"`
}

func (r analyzeRequest) toRequest() analysis.Request {
	return analysis.Request{
		JobRole:       r.JobRole,
		Transcript:    r.Transcript,
		ApplicationID: r.ApplicationID,
		OwnerID:       r.OwnerID,
	}
}

// Analyze POST /reports/analyze，同步分析并返回报告
func (h *ReportHandler) Analyze(ctx context.Context, c *app.RequestContext) {
	var req analyzeRequest
	if err := bindJSON(c, "api.analyze", &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	report, err := h.reports.Analyze(ctx, req.toRequest())
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusCreated, map[string]interface{}{
		"report_id": report.ReportID,
		"report":    report,
	})
}

// AnalyzeAsync POST /reports/analyze/async，入队后返回 202
func (h *ReportHandler) AnalyzeAsync(ctx context.Context, c *app.RequestContext) {
	const op = "api.analyze_async"
	if h.queue == nil {
		writeError(ctx, c, types.NewExternalServiceError(op, "异步分析队列不可用", nil))
		return
	}
	var req analyzeRequest
	if err := bindJSON(c, op, &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	// Enqueue 内部同步校验，无效请求不会进入队列
	if err := h.queue.Enqueue(ctx, req.toRequest()); err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusAccepted, map[string]string{"status": string(types.ReportProcessing)})
}

// Get GET /reports/:id
func (h *ReportHandler) Get(ctx context.Context, c *app.RequestContext) {
	report, err := h.reports.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, report)
}

// List GET /reports?application_id= 或 ?practice=true&owner_id=
func (h *ReportHandler) List(ctx context.Context, c *app.RequestContext) {
	const op = "api.list_reports"
	page, err := pageFromQuery(c, op)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	practice := false
	if raw := c.Query("practice"); raw != "" {
		if practice, err = strconv.ParseBool(raw); err != nil {
			writeError(ctx, c, types.NewValidationError(op, "practice 必须是布尔值"))
			return
		}
	}
	applicationID := c.Query("application_id")

	var result *analysis.ListResult
	switch {
	case practice && applicationID != "":
		err = types.NewValidationError(op, "practice 与 application_id 不能同时指定")
	case practice:
		result, err = h.reports.ListPractice(ctx, c.Query("owner_id"), page)
	case applicationID != "":
		result, err = h.reports.ListByApplication(ctx, applicationID, page)
	default:
		err = types.NewValidationError(op, "需要 application_id 或 practice=true")
	}
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, result)
}

// Delete DELETE /reports/:id
func (h *ReportHandler) Delete(ctx context.Context, c *app.RequestContext) {
	if err := h.reports.Delete(ctx, c.Param("id")); err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, map[string]string{"report_id": c.Param("id")})
}
