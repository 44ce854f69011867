package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/rs/zerolog"
)

// OutboxWriter 发件箱写入，由 storage.MySQL 实现
type OutboxWriter interface {
	InsertOutbox(ctx context.Context, aggregateID, eventType, exchange, routingKey string, payload interface{}) error
}

// Deliverer 带重试的发送
type Deliverer struct {
	sender      Sender
	maxAttempts int
	backoff     time.Duration
	logger      zerolog.Logger
}

// NewDeliverer 创建 Deliverer。backoff 为首次重试的等待时间，之后每次翻倍
func NewDeliverer(sender Sender, maxAttempts int, backoff time.Duration, logger zerolog.Logger) *Deliverer {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &Deliverer{sender: sender, maxAttempts: maxAttempts, backoff: backoff, logger: logger}
}

// Deliver 渲染并发送一条通知，失败时指数退避重试，最终失败返回最后一次的错误
// 收件人无效之类的校验错误不重试
func (d *Deliverer) Deliver(ctx context.Context, n storage.CandidateNotificationMessage) error {
	msg := Render(n)
	wait := d.backoff
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err = d.sender.Send(ctx, msg); err == nil {
			return nil
		}
		if errors.Is(err, types.ErrValidation) {
			d.logger.Error().Err(err).Str("application_id", n.ApplicationID).Msg("通知无法发送")
			return err
		}
		d.logger.Warn().Err(err).
			Str("application_id", n.ApplicationID).
			Int("attempt", attempt).
			Int("max_attempts", d.maxAttempts).
			Msg("通知发送失败")
		if attempt == d.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

// Dispatcher 通知分发。Notify 只把任务放进缓冲队列，后台协程负责写发件箱或直接发送
type Dispatcher struct {
	outbox     OutboxWriter
	exchange   string
	routingKey string
	deliverer  *Deliverer
	queue      chan storage.CandidateNotificationMessage
	now        func() time.Time
	logger     zerolog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// DispatcherOption Dispatcher 的配置选项
type DispatcherOption func(*Dispatcher)

// WithOutbox 通知先写入发件箱，由 relay 投递到 exchange/routingKey
func WithOutbox(outbox OutboxWriter, exchange, routingKey string) DispatcherOption {
	return func(d *Dispatcher) {
		d.outbox = outbox
		d.exchange = exchange
		d.routingKey = routingKey
	}
}

// WithBuffer 设置缓冲队列长度
func WithBuffer(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan storage.CandidateNotificationMessage, n)
		}
	}
}

// NewDispatcher 创建 Dispatcher。未配置发件箱时由 deliverer 直接发送
func NewDispatcher(deliverer *Deliverer, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		deliverer: deliverer,
		queue:     make(chan storage.CandidateNotificationMessage, 256),
		now:       time.Now,
		logger:    logger,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify 立即返回。队列满时丢弃并记录日志，不影响调用方
func (d *Dispatcher) Notify(_ context.Context, app *models.Application, job *models.Job, outcome types.NotificationOutcome) {
	if app == nil {
		return
	}
	n := storage.CandidateNotificationMessage{
		ApplicationID:  app.ApplicationID,
		CandidateName:  app.CandidateName,
		CandidateEmail: app.CandidateEmail,
		JobID:          app.JobID,
		Outcome:        outcome,
		InterviewDate:  app.InterviewStartDate,
		EnqueuedAt:     d.now(),
	}
	if job != nil {
		n.JobTitle = job.Title
		n.CompanyName = job.Company
	}
	select {
	case <-d.done:
		d.logger.Warn().Str("application_id", app.ApplicationID).Msg("通知分发已关闭，丢弃通知")
		return
	default:
	}
	select {
	case d.queue <- n:
	default:
		d.logger.Error().Str("application_id", app.ApplicationID).Str("outcome", string(outcome)).Msg("通知队列已满，丢弃通知")
	}
}

// Run 处理队列直到 ctx 结束或 Close 被调用，退出前会处理完已入队的通知
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.handle(ctx, n)
		case <-ctx.Done():
			d.drain(context.Background())
			return
		case <-d.done:
			d.drain(ctx)
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.handle(ctx, n)
		default:
			return
		}
	}
}

// Close 停止 Run
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) handle(ctx context.Context, n storage.CandidateNotificationMessage) {
	log := d.logger.With().Str("application_id", n.ApplicationID).Str("outcome", string(n.Outcome)).Logger()
	if d.outbox != nil {
		err := d.outbox.InsertOutbox(ctx, n.ApplicationID, storage.EventCandidateNotification, d.exchange, d.routingKey, n)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("写入发件箱失败，改为直接发送")
	}
	if d.deliverer == nil {
		log.Error().Msg("没有可用的通知渠道，通知丢失")
		return
	}
	if err := d.deliverer.Deliver(ctx, n); err != nil {
		log.Error().Err(err).Msg("通知最终发送失败")
	}
}

// Consumer 消费通知队列
type Consumer struct {
	deliverer *Deliverer
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewConsumer(deliverer *Deliverer, logger zerolog.Logger) *Consumer {
	return &Consumer{deliverer: deliverer, timeout: time.Minute, logger: logger}
}

// Handle 处理一条通知消息。发送的重试在 Deliverer 内完成，最终失败只记录日志并确认
func (c *Consumer) Handle(body []byte) storage.Delivery {
	var n storage.CandidateNotificationMessage
	if err := json.Unmarshal(body, &n); err != nil {
		c.logger.Error().Err(err).Int("body_len", len(body)).Msg("通知消息格式错误，丢弃")
		return storage.DeliveryDrop
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.deliverer.Deliver(ctx, n); err != nil {
		c.logger.Error().Err(err).
			Str("application_id", n.ApplicationID).
			Str("recipient", n.CandidateEmail).
			Msg("通知最终发送失败")
	}
	return storage.DeliveryAck
}
