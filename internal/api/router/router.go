package router

import (
	"context"

	"ai-interview-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Handlers 路由用到的全部 handler
type Handlers struct {
	Applications *handler.ApplicationHandler
	Jobs         *handler.JobHandler
	Interviews   *handler.InterviewHandler
	Identity     *handler.IdentityHandler
	Reports      *handler.ReportHandler
}

// Options 路由配置
type Options struct {
	// APIKey 非空时招聘方接口需要 X-API-Key
	APIKey string
	// HealthChecks 健康检查项，任一失败时 /health 返回 503
	HealthChecks map[string]func(ctx context.Context) error
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, hs Handlers, opts Options) {
	h.Use(Recovery(), RequestID(), AccessLog())

	api := h.Group("/api/v1")

	var recruiter []app.HandlerFunc
	if opts.APIKey != "" {
		recruiter = append(recruiter, APIKeyAuth(opts.APIKey))
	}
	withAuth := func(fn app.HandlerFunc) []app.HandlerFunc {
		return append(append([]app.HandlerFunc{}, recruiter...), fn)
	}

	apps := api.Group("/applications")
	apps.POST("", hs.Applications.Submit)
	apps.GET("", withAuth(hs.Applications.List)...)
	apps.GET("/:id", hs.Applications.Get)
	apps.PUT("/:id/status", withAuth(hs.Applications.UpdateStatus)...)
	apps.GET("/:id/resume", hs.Applications.ResumeURL)

	jobs := api.Group("/jobs", recruiter...)
	jobs.POST("/:job_id/shortlist", hs.Jobs.Shortlist)
	jobs.POST("/:job_id/rank", hs.Jobs.Rank)
	jobs.POST("/:job_id/interviews", hs.Jobs.InviteForInterview)
	jobs.GET("/:job_id/ranking.xlsx", hs.Jobs.ExportRanking)

	interviews := api.Group("/interviews")
	interviews.POST("/question", hs.Interviews.NextQuestion)
	interviews.POST("/:application_id/start", hs.Interviews.Start)
	interviews.POST("/:application_id/complete", hs.Interviews.Complete)
	interviews.POST("/:application_id/violations", hs.Interviews.Violation)
	interviews.POST("/:application_id/turns", hs.Interviews.AppendTurn)
	interviews.GET("/:application_id/turns", hs.Interviews.Transcript)

	identity := api.Group("/identity")
	identity.POST("/verify", hs.Identity.Verify)
	identity.POST("/register", hs.Identity.Register)

	reports := api.Group("/reports")
	reports.POST("/analyze", hs.Reports.Analyze)
	reports.POST("/analyze/async", hs.Reports.AnalyzeAsync)
	reports.GET("", hs.Reports.List)
	reports.GET("/:id", hs.Reports.Get)
	reports.DELETE("/:id", hs.Reports.Delete)

	api.GET("/health", healthHandler(opts.HealthChecks))
}

func healthHandler(checks map[string]func(ctx context.Context) error) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		healthy := true
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				healthy = false
				continue
			}
			components[name] = "ok"
		}
		if !healthy {
			c.JSON(consts.StatusServiceUnavailable, utils.H{
				"success": false,
				"error":   "部分依赖不可用",
				"data":    utils.H{"status": "degraded", "components": components},
			})
			return
		}
		c.JSON(consts.StatusOK, utils.H{"success": true, "data": utils.H{"status": "ok", "components": components}})
	}
}
