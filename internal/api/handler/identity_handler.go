package handler

import (
	"context"

	"ai-interview-go/internal/identity"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// IdentityService 身份核验，由 identity.Gate 实现
type IdentityService interface {
	Verify(ctx context.Context, descriptor types.Descriptor, applicationID, userID string) (*identity.Result, error)
	Register(ctx context.Context, userID string, descriptor types.Descriptor) error
}

type IdentityHandler struct {
	svc IdentityService
}

func NewIdentityHandler(svc IdentityService) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

type verifyRequest struct {
	Descriptor    types.Descriptor `json:"descriptor"`
	ApplicationID string           `json:"application_id"`
	UserID        string           `json:"user_id"`
}

// Verify POST /identity/verify。找不到已登记的特征向量时返回 needsRegistration，不算错误
func (h *IdentityHandler) Verify(ctx context.Context, c *app.RequestContext) {
	var req verifyRequest
	if err := bindJSON(c, "api.verify_identity", &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	result, err := h.svc.Verify(ctx, req.Descriptor, req.ApplicationID, req.UserID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusOK, result)
}

type registerRequest struct {
	UserID     string           `json:"user_id"`
	Descriptor types.Descriptor `json:"descriptor"`
}

// Register POST /identity/register
func (h *IdentityHandler) Register(ctx context.Context, c *app.RequestContext) {
	var req registerRequest
	if err := bindJSON(c, "api.register_identity", &req, false); err != nil {
		writeError(ctx, c, err)
		return
	}
	if err := h.svc.Register(ctx, req.UserID, req.Descriptor); err != nil {
		writeError(ctx, c, err)
		return
	}
	writeData(c, consts.StatusCreated, map[string]string{"user_id": req.UserID})
}
