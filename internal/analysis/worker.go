package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
)

// Publisher 消息发布，由 storage.RabbitMQ 实现
type Publisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, data interface{}, persistent bool) error
}

// Queue 异步分析的入队端
type Queue struct {
	publisher  Publisher
	exchange   string
	routingKey string
	maxTurns   int
	now        func() time.Time
}

// NewQueue 创建 Queue
func NewQueue(publisher Publisher, exchange, routingKey string, maxTurns int) *Queue {
	return &Queue{publisher: publisher, exchange: exchange, routingKey: routingKey, maxTurns: maxTurns, now: time.Now}
}

// Enqueue 校验后把分析请求投递到队列，由 Worker 异步处理
func (q *Queue) Enqueue(ctx context.Context, req Request) error {
	const op = "analysis.enqueue"
	p := &Pipeline{maxTurns: q.maxTurns}
	if err := p.validate(&req); err != nil {
		return err
	}
	if q.publisher == nil {
		return types.NewExternalServiceError(op, "消息队列不可用", nil)
	}
	msg := storage.AnalysisRequestMessage{
		ApplicationID: req.ApplicationID,
		OwnerID:       req.OwnerID,
		JobRole:       req.JobRole,
		Transcript:    req.Transcript,
		RequestedAt:   q.now(),
	}
	if err := q.publisher.PublishJSON(ctx, q.exchange, q.routingKey, msg, true); err != nil {
		return types.NewExternalServiceError(op, "分析请求入队失败", err)
	}
	return nil
}

// Worker 消费分析队列
type Worker struct {
	pipeline     *Pipeline
	timeout      time.Duration
	requeueDelay time.Duration // 重新入队前等待，避免外部服务故障时空转
	logger       zerolog.Logger
}

// NewWorker 创建 Worker，timeout 为单条消息的整体处理时限
func NewWorker(pipeline *Pipeline, timeout time.Duration, logger zerolog.Logger) *Worker {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Worker{pipeline: pipeline, timeout: timeout, requeueDelay: 2 * time.Second, logger: logger}
}

// Handle 处理一条队列消息。
// 格式错误的消息丢弃；校验失败和解析失败重试也不会成功，确认后只记日志；外部服务错误延迟后重新入队
func (w *Worker) Handle(body []byte) storage.Delivery {
	var msg storage.AnalysisRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error().Err(err).Int("body_len", len(body)).Msg("分析请求消息格式错误，丢弃")
		return storage.DeliveryDrop
	}
	log := w.logger.With().Str("application_id", msg.ApplicationID).Str("job_role", msg.JobRole).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	report, err := w.pipeline.Analyze(ctx, Request{
		JobRole:       msg.JobRole,
		Transcript:    msg.Transcript,
		ApplicationID: msg.ApplicationID,
		OwnerID:       msg.OwnerID,
	})
	switch {
	case err == nil:
		log.Info().Str("report_id", report.ReportID).Dur("queued_for", time.Since(msg.RequestedAt)).Msg("异步分析完成")
		return storage.DeliveryAck
	case errors.Is(err, types.ErrValidation), errors.Is(err, types.ErrParse):
		log.Warn().Err(err).Msg("分析请求无法处理，不再重试")
		return storage.DeliveryAck
	case errors.Is(err, types.ErrExternalService):
		log.Warn().Err(err).Msg("文本生成服务暂不可用，重新入队")
	default:
		log.Error().Err(err).Msg("分析失败，重新入队")
	}
	if w.requeueDelay > 0 {
		time.Sleep(w.requeueDelay)
	}
	return storage.DeliveryRequeue
}
