package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-interview-go/internal/config"
	"ai-interview-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// 支持的模型提供方
const (
	ProviderOpenAICompatible = "openai_compatible"
	ProviderQwen             = "qwen"
	ProviderVertex           = "vertex"
)

// NewChatModel 按配置创建模型并套上限流代理
func NewChatModel(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (model.ToolCallingChatModel, error) {
	var base model.ToolCallingChatModel
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAICompatible, ProviderQwen:
		base, err = NewOpenAICompatibleChatModel(cfg.APIKey, cfg.Model, cfg.APIURL, cfg.Timeout(), logger)
	case ProviderVertex:
		base, err = NewVertexChatModel(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.Model)
	default:
		return nil, fmt.Errorf("不支持的 LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	retryWait := time.Duration(cfg.RetryWaitSeconds) * time.Second
	return NewRateLimitedChatModel(base, cfg.QPM, retryWait, cfg.MaxRetries), nil
}

// Complete 在 timeout 内完成一次 system+user 调用，返回文本。
// 超时、调用失败、空输出都归为 ExternalServiceError
func Complete(ctx context.Context, m model.BaseChatModel, timeout time.Duration, op, system, user string, opts ...model.Option) (string, error) {
	if m == nil {
		return "", types.NewExternalServiceError(op, "文本生成服务未配置", nil)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messages := make([]*schema.Message, 0, 2)
	if system != "" {
		messages = append(messages, schema.SystemMessage(system))
	}
	messages = append(messages, schema.UserMessage(user))

	resp, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", types.NewExternalServiceError(op, fmt.Sprintf("文本生成服务超时 (%s)", timeout), err)
		}
		return "", types.NewExternalServiceError(op, "文本生成服务调用失败", err)
	}
	if resp == nil {
		return "", types.NewExternalServiceError(op, "文本生成服务返回空结果", nil)
	}

	content := strings.TrimSpace(strings.TrimPrefix(resp.Content, "\uFEFF"))
	if content == "" {
		return "", types.NewExternalServiceError(op, "文本生成服务返回空结果", nil)
	}
	return content, nil
}
