package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"ai-interview-go/internal/ranking"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RankingService 排名与批量流转，由 ranking.Engine 实现
type RankingService interface {
	ShortlistAll(ctx context.Context, jobID string) (int, error)
	BulkRankUpdate(ctx context.Context, jobID string, shortlistCount int) (*ranking.RankResult, error)
	ApproveAllForInterview(ctx context.Context, jobID string) (int, error)
	ExportRanking(ctx context.Context, jobID string, w io.Writer) error
}

// JobHandler 岗位维度的批量操作，仅招聘方可用
type JobHandler struct {
	svc RankingService
}

func NewJobHandler(svc RankingService) *JobHandler {
	return &JobHandler{svc: svc}
}

// Shortlist POST /jobs/:job_id/shortlist
func (h *JobHandler) Shortlist(ctx context.Context, c *app.RequestContext) {
	n, err := h.svc.ShortlistAll(ctx, c.Param("job_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, map[string]int{"approved": n})
}

type rankRequest struct {
	ShortlistCount *int `json:"shortlist_count"`
}

// Rank POST /jobs/:job_id/rank {"shortlist_count":k}
func (h *JobHandler) Rank(ctx context.Context, c *app.RequestContext) {
	const op = "api.bulk_rank_update"
	var req rankRequest
	if err := bindJSON(c, op, &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	if req.ShortlistCount == nil {
		writeError(ctx, c, types.NewValidationError(op, "缺少 shortlist_count"))
		return
	}
	result, err := h.svc.BulkRankUpdate(ctx, c.Param("job_id"), *req.ShortlistCount)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, result)
}

// InviteForInterview POST /jobs/:job_id/interviews
func (h *JobHandler) InviteForInterview(ctx context.Context, c *app.RequestContext) {
	n, err := h.svc.ApproveAllForInterview(ctx, c.Param("job_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, map[string]int{"interviewing": n})
}

// ExportRanking GET /jobs/:job_id/ranking.xlsx
func (h *JobHandler) ExportRanking(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	var buf bytes.Buffer
	if err := h.svc.ExportRanking(ctx, jobID, &buf); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ranking-%s.xlsx"`, jobID))
	c.Data(consts.StatusOK, xlsxContentType, buf.Bytes())
}
