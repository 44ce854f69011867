package handler

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"ai-interview-go/internal/logger"
	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// writeData 成功响应 {"success":true,"data":...}
func writeData(c *app.RequestContext, status int, data interface{}) {
	c.JSON(status, utils.H{"success": true, "data": data})
}

// writeError 按错误分类返回状态码，5xx 会记录日志
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := types.HTTPStatus(err)
	if status >= consts.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).
			Str("method", string(c.Method())).
			Str("path", string(c.Path())).
			Msg("请求处理失败")
	}
	c.JSON(status, utils.H{"success": false, "error": types.PublicMessage(err)})
}

// bindJSON 解析请求体，body 为空且 allowEmpty 时保持零值
func bindJSON(c *app.RequestContext, op string, dst interface{}, allowEmpty bool) error {
	body := c.Request.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		if allowEmpty {
			return nil
		}
		return types.NewValidationError(op, "请求体不能为空")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return types.NewValidationError(op, "请求体不是合法的 JSON: "+err.Error())
	}
	return nil
}

// pageFromQuery 读取 page / page_size，非数字返回 ValidationError，越界值交给 Page.Normalize
func pageFromQuery(c *app.RequestContext, op string) (storage.Page, error) {
	var p storage.Page
	for _, q := range []struct {
		key string
		dst *int
	}{{"page", &p.Page}, {"page_size", &p.PageSize}} {
		raw := c.Query(q.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, types.NewValidationError(op, q.key+" 必须是整数")
		}
		*q.dst = v
	}
	return p.Normalize(), nil
}
