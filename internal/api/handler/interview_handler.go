package handler

import (
	"context"

	"ai-interview-go/internal/interview"
	"ai-interview-go/internal/proctor"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// InterviewService 面试会话，由 interview.Orchestrator 实现
type InterviewService interface {
	Start(ctx context.Context, req interview.StartRequest) (*models.Application, error)
	NextQuestion(ctx context.Context, qc interview.QuestionContext, history []types.Turn) (string, error)
	Complete(ctx context.Context, applicationID string) (*models.Application, error)
	AppendTurn(ctx context.Context, applicationID string, turn types.Turn) error
	Transcript(ctx context.Context, applicationID string) (types.Transcript, error)
	CheckpointsEnabled() bool
}

// ProctorService 监考事件，由 proctor.SessionTracker 实现
type ProctorService interface {
	Report(ctx context.Context, applicationID string, kind proctor.ViolationKind) (proctor.Decision, error)
	Reset(ctx context.Context, applicationID string)
}

// InterviewHandler 面试流程接口
type InterviewHandler struct {
	interviews InterviewService
	proctor    ProctorService
}

func NewInterviewHandler(interviews InterviewService, proctor ProctorService) *InterviewHandler {
	return &InterviewHandler{interviews: interviews, proctor: proctor}
}

type startRequest struct {
	Descriptor types.Descriptor `json:"descriptor"`
	UserID     string           `json:"user_id"`
}

// Start POST /interviews/:application_id/start，body 可为空
func (h *InterviewHandler) Start(ctx context.Context, c *app.RequestContext) {
	var req startRequest
	if err := bindJSON(c, "api.start_interview", &req, true); err != nil {
		writeError(ctx, c, err)
		return
	}
	applicationID := c.Param("application_id")
	application, err := h.interviews.Start(ctx, interview.StartRequest{
		ApplicationID: applicationID,
		Descriptor:    req.Descriptor,
		UserID:        req.UserID,
	})
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if h.proctor != nil {
		h.proctor.Reset(ctx, application.ApplicationID)
	}
	writeData(c, consts.StatusOK, application)
}

// Complete POST /interviews/:application_id/complete
func (h *InterviewHandler) Complete(ctx context.Context, c *app.RequestContext) {
	application, err := h.interviews.Complete(ctx, c.Param("application_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, application)
}

type questionRequest struct {
	CandidateName  string       `json:"candidate_name"`
	JobRole        string       `json:"job_role"`
	JobDescription string       `json:"job_description"`
	ResumeSummary  string       `json:"resume_summary"`
	History        []types.Turn `json:"history"`
}

// NextQuestion POST /interviews/question，无状态，每次带上完整对话
func (h *InterviewHandler) NextQuestion(ctx context.Context, c *app.RequestContext) {
	var req questionRequest
	if err := bindJSON(c, "api.next_question", &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	question, err := h.interviews.NextQuestion(ctx, interview.QuestionContext{
		CandidateName:  req.CandidateName,
		JobRole:        req.JobRole,
		JobDescription: req.JobDescription,
		ResumeSummary:  req.ResumeSummary,
	}, req.History)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, map[string]string{"question": question})
}

type violationRequest struct {
	Kind string `json:"kind"`
}

// Violation POST /interviews/:application_id/violations
func (h *InterviewHandler) Violation(ctx context.Context, c *app.RequestContext) {
	const op = "api.report_violation"
	if h.proctor == nil {
		writeError(ctx, c, types.NewExternalServiceError(op, "监考服务未启用", nil))
		return
	}
	var req violationRequest
	if err := bindJSON(c, op, &req, true); err != nil {
		writeError(ctx, c, err)
		return
	}
	kind, err := proctor.ParseViolationKind(req.Kind)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	decision, err := h.proctor.Report(ctx, c.Param("application_id"), kind)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, decision)
}

// AppendTurn POST /interviews/:application_id/turns
func (h *InterviewHandler) AppendTurn(ctx context.Context, c *app.RequestContext) {
	const op = "api.append_turn"
	if !h.interviews.CheckpointsEnabled() {
		writeError(ctx, c, types.NewNotFoundError(op, "未开启对话断点"))
		return
	}
	var turn types.Turn
	if err := bindJSON(c, op, &turn, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	if err := h.interviews.AppendTurn(ctx, c.Param("application_id"), turn); err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusCreated, turn)
}

// Transcript GET /interviews/:application_id/turns
func (h *InterviewHandler) Transcript(ctx context.Context, c *app.RequestContext) {
	if !h.interviews.CheckpointsEnabled() {
		writeError(ctx, c, types.NewNotFoundError("api.transcript", "未开启对话断点"))
		return
	}
	transcript, err := h.interviews.Transcript(ctx, c.Param("application_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	if transcript == nil {
		transcript = types.Transcript{}
	}
	writeData(c, consts.StatusOK, transcript)
}
