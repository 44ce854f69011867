package router

import (
	"context"
	"crypto/subtle"
	"time"

	"ai-interview-go/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/middlewares/server/recovery"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-Key"
)

// RequestID 透传或生成请求ID，并把带 request_id 字段的 logger 放进 context
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Set("request_id", id)
		l := logger.Logger.With().Str("request_id", id).Logger()
		c.Next(l.WithContext(ctx))
	}
}

// AccessLog 记录每个请求的方法、路径、状态码和耗时
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		status := c.Response.StatusCode()
		event := logger.Ctx(ctx).Info()
		if status >= consts.StatusInternalServerError {
			event = logger.Ctx(ctx).Warn()
		}
		event.Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP请求")
	}
}

// Recovery 捕获 handler panic，返回统一的 500 响应
func Recovery() app.HandlerFunc {
	return recovery.Recovery(recovery.WithRecoveryHandler(
		func(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte) {
			logger.Ctx(ctx).Error().
				Interface("panic", err).
				Bytes("stack", stack).
				Str("path", string(c.Path())).
				Msg("请求处理发生 panic")
			c.AbortWithStatusJSON(consts.StatusInternalServerError, utils.H{"success": false, "error": "服务器内部错误"})
		},
	))
}

// APIKeyAuth 招聘方接口的 API Key 校验，key 从 X-API-Key 头读取
func APIKeyAuth(apiKey string) app.HandlerFunc {
	expected := []byte(apiKey)
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+HeaderAPIKey, ""),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
		}),
		keyauth.WithErrorHandler(func(_ context.Context, c *app.RequestContext, _ error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"success": false, "error": "未授权访问"})
		}),
	)
}
