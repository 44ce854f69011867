package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	// DashScope 的 OpenAI 兼容接口
	defaultCompatibleAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultCompatibleModel  = "qwen-plus"
)

type compatibleTool struct {
	Type     string             `json:"type"`
	Function compatibleFunction `json:"function"`
}

type compatibleFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type compatibleMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type compatibleRequest struct {
	Model       string              `json:"model"`
	Messages    []compatibleMessage `json:"messages"`
	Temperature *float32            `json:"temperature,omitempty"`
	Tools       []compatibleTool    `json:"tools,omitempty"`
}

type compatibleChoice struct {
	Index        int               `json:"index"`
	Message      compatibleMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type compatibleResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []compatibleChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// OpenAICompatibleChatModel 通过 OpenAI 兼容协议调用通义千问等模型，
// 实现 model.ToolCallingChatModel
type OpenAICompatibleChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	tools      []compatibleTool
	logger     zerolog.Logger
}

// NewOpenAICompatibleChatModel 创建模型客户端，timeout 作用于单次 HTTP 请求
func NewOpenAICompatibleChatModel(apiKey, modelName, apiURL string, timeout time.Duration, logger zerolog.Logger) (*OpenAICompatibleChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultCompatibleModel
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultCompatibleAPIURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger.Info().Str("api_url", apiURL).Str("model", modelName).Msg("使用 OpenAI 兼容 LLM 客户端")

	return &OpenAICompatibleChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Generate 发送一次非流式补全请求
func (m *OpenAICompatibleChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{}, opts...)

	payload := compatibleRequest{
		Model:       m.modelName,
		Messages:    make([]compatibleMessage, 0, len(messages)),
		Temperature: common.Temperature,
		Tools:       m.tools,
	}
	if common.Model != nil && *common.Model != "" {
		payload.Model = *common.Model
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		content := msg.Content
		payload.Messages = append(payload.Messages, compatibleMessage{Role: string(msg.Role), Content: &content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	m.logger.Debug().
		Str("status", resp.Status).
		Int("messages", len(payload.Messages)).
		Dur("elapsed", time.Since(start)).
		Msg("LLM 请求完成")

	if resp.StatusCode != http.StatusOK {
		// 状态文本里带 "429 Too Many Requests"，限流代理据此判断是否重试
		return nil, fmt.Errorf("API 请求失败，状态 %s: %.300s", resp.Status, string(raw))
	}

	var parsed compatibleResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API 返回错误 %s: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项")
	}

	choice := parsed.Choices[0].Message
	out := &schema.Message{Role: schema.Assistant}
	if choice.Role != "" {
		out.Role = schema.RoleType(choice.Role)
	}
	if choice.Content != nil {
		out.Content = *choice.Content
	}
	return out, nil
}

// Stream 以单个分片返回完整结果，本服务不需要逐字输出
func (m *OpenAICompatibleChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 返回绑定了工具的新实例，原实例不受影响
func (m *OpenAICompatibleChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound := make([]compatibleTool, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		bound = append(bound, compatibleTool{
			Type: "function",
			Function: compatibleFunction{
				Name:        t.Name,
				Description: t.Desc,
				Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
			},
		})
	}
	clone := *m
	clone.tools = bound
	return &clone, nil
}

var _ model.ToolCallingChatModel = (*OpenAICompatibleChatModel)(nil)
