package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultVertexModel = "gemini-1.5-flash"

// VertexChatModel 把 Vertex AI Gemini 适配成 eino 的 ToolCallingChatModel
type VertexChatModel struct {
	client    *genai.Client
	modelName string
}

// NewVertexChatModel 创建 Vertex AI 客户端
func NewVertexChatModel(ctx context.Context, projectID, location, modelName string) (*VertexChatModel, error) {
	if projectID == "" {
		return nil, fmt.Errorf("vertex project 未配置")
	}
	if location == "" {
		location = "us-central1"
	}
	if modelName == "" {
		modelName = defaultVertexModel
	}
	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("创建 Vertex AI 客户端失败: %w", err)
	}
	return &VertexChatModel{client: client, modelName: modelName}, nil
}

// Generate system 消息作为 SystemInstruction，其余消息组成对话历史，最后一条作为本轮输入
func (v *VertexChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{}, opts...)

	// GenerativeModel 带可变配置，每次调用新建一个
	gm := v.client.GenerativeModel(v.modelName)
	gm.SetTemperature(0.2)
	if common.Temperature != nil {
		gm.SetTemperature(*common.Temperature)
	}

	var system []string
	var history []*genai.Content
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("没有可发送的消息")
	}
	if len(system) > 0 {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}

	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("vertex generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("vertex 未返回候选结果")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return schema.AssistantMessage(sb.String(), nil), nil
}

// Stream 以单个分片返回完整结果
func (v *VertexChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := v.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools Gemini 的函数调用在本服务中用不到，直接返回自身
func (v *VertexChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return v, nil
}

// Close 关闭底层客户端
func (v *VertexChatModel) Close() error {
	return v.client.Close()
}

var _ model.ToolCallingChatModel = (*VertexChatModel)(nil)
