package handler

import (
	"context"
	"encoding/json"
	"io"

	"ai-interview-go/internal/registry"
	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ApplicationService 投递登记与查询，由 registry.Registry 实现
type ApplicationService interface {
	Submit(ctx context.Context, req registry.SubmitRequest) (*models.Application, error)
	UpdateStatus(ctx context.Context, applicationID string, status types.ApplicationStatus) (*models.Application, error)
	Get(ctx context.Context, applicationID string) (*models.Application, error)
	List(ctx context.Context, filter storage.ApplicationFilter, page storage.Page) (*registry.ListResult, error)
	ResumeURL(ctx context.Context, applicationID string) (string, error)
}

// ApplicationHandler 投递相关接口
type ApplicationHandler struct {
	svc ApplicationService
}

func NewApplicationHandler(svc ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{svc: svc}
}

// Submit POST /applications，multipart 字段: job_id, name, email, resume(文件), descriptor(可选 JSON 数组)
func (h *ApplicationHandler) Submit(ctx context.Context, c *app.RequestContext) {
	const op = "api.submit_application"
	fileHeader, err := c.FormFile("resume")
	if err != nil {
		writeError(ctx, c, types.NewValidationError(op, "缺少简历文件 resume"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeError(ctx, c, types.NewValidationError(op, "无法读取简历文件"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(ctx, c, types.NewValidationError(op, "无法读取简历文件"))
		return
	}

	var descriptor types.Descriptor
	if raw := c.PostForm("descriptor"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &descriptor); err != nil {
			writeError(ctx, c, types.NewValidationError(op, "descriptor 必须是数字数组"))
			return
		}
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(fileHeader.Filename)
	}

	application, err := h.svc.Submit(ctx, registry.SubmitRequest{
		JobID: c.PostForm("job_id"),
		Candidate: registry.Candidate{
			Name:  c.PostForm("name"),
			Email: c.PostForm("email"),
		},
		Resume: registry.Resume{
			Bytes:       data,
			ContentType: contentType,
			Filename:    fileHeader.Filename,
		},
		Descriptor: descriptor,
	})
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusCreated, application)
}

// List GET /applications?job_id=&status=&page=&page_size=
func (h *ApplicationHandler) List(ctx context.Context, c *app.RequestContext) {
	const op = "api.list_applications"
	page, err := pageFromQuery(c, op)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	filter := storage.ApplicationFilter{JobID: c.Query("job_id")}
	if raw := c.Query("status"); raw != "" {
		if filter.Status, err = types.ParseApplicationStatus(raw); err != nil {
			writeError(ctx, c, err)
			return
		}
	}
	result, err := h.svc.List(ctx, filter, page)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, result)
}

// Get GET /applications/:id
func (h *ApplicationHandler) Get(ctx context.Context, c *app.RequestContext) {
	application, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, application)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus PUT /applications/:id/status
func (h *ApplicationHandler) UpdateStatus(ctx context.Context, c *app.RequestContext) {
	const op = "api.update_status"
	var req updateStatusRequest
	if err := bindJSON(c, op, &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	status, err := types.ParseApplicationStatus(req.Status)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	application, err := h.svc.UpdateStatus(ctx, c.Param("id"), status)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, application)
}

// ResumeURL GET /applications/:id/resume
func (h *ApplicationHandler) ResumeURL(ctx context.Context, c *app.RequestContext) {
	url, err := h.svc.ResumeURL(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, map[string]string{"url": url})
}
