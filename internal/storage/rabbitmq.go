package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ai-interview-go/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// MessageQueue 消息队列接口
type MessageQueue interface {
	// 发布消息
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error

	// 发布JSON格式消息
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error

	// 关闭连接
	Close() error
}

// 确保RabbitMQ实现了MessageQueue接口
var _ MessageQueue = (*RabbitMQ)(nil)

// Delivery 消费者处理结果
type Delivery int

const (
	// DeliveryAck 处理成功，确认消息
	DeliveryAck Delivery = iota
	// DeliveryRequeue 临时失败，重新入队
	DeliveryRequeue
	// DeliveryDrop 消息本身有问题，拒绝且不重新入队
	DeliveryDrop
)

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	declared     map[string]bool // 已声明的 exchange/queue/binding
	declareMutex sync.Mutex
	publishMutex sync.Mutex
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ 创建RabbitMQ客户端并声明本服务使用的拓扑
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		declared: make(map[string]bool),
		cfg:      cfg,
	}
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				log.Warn().Err(errPool).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}

	if err := mq.setupTopology(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("exchange", cfg.LifecycleExchange).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// setupTopology 声明 direct 交换机以及通知、分析两个队列
func (r *RabbitMQ) setupTopology() error {
	if err := r.EnsureExchange(r.cfg.LifecycleExchange, "direct", true); err != nil {
		return err
	}
	bindings := []struct{ queue, key string }{
		{r.cfg.NotificationQueue, r.cfg.NotificationRoutingKey},
		{r.cfg.AnalysisQueue, r.cfg.AnalysisRoutingKey},
	}
	for _, b := range bindings {
		if err := r.EnsureQueue(b.queue, true); err != nil {
			return err
		}
		if err := r.BindQueue(b.queue, r.cfg.LifecycleExchange, b.key); err != nil {
			return err
		}
	}
	return nil
}

func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			log.Warn().Err(err).Msg("创建新RabbitMQ通道失败")
			return nil
		}
		return newCh
	}
	c := ch.(*amqp.Channel)
	if c.IsClosed() {
		newCh, err := r.conn.Channel()
		if err != nil {
			return nil
		}
		return newCh
	}
	return c
}

func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// Ping 连接已断开时返回错误，供健康检查使用
func (r *RabbitMQ) Ping(_ context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ连接已关闭")
	}
	return nil
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	return r.declareOnce("exchange:"+exchangeName, func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(exchangeName, exchangeType, durable, false, false, false, nil)
	})
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	if queueName == "" {
		return fmt.Errorf("队列名称不能为空")
	}
	return r.declareOnce("queue:"+queueName, func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(queueName, durable, false, false, false, nil)
		return err
	})
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	return r.declareOnce(fmt.Sprintf("binding:%s:%s:%s", exchangeName, queueName, routingKey), func(ch *amqp.Channel) error {
		return ch.QueueBind(queueName, routingKey, exchangeName, false, nil)
	})
}

func (r *RabbitMQ) declareOnce(key string, declare func(ch *amqp.Channel) error) error {
	r.declareMutex.Lock()
	defer r.declareMutex.Unlock()
	if r.declared[key] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if err := declare(ch); err != nil {
		return fmt.Errorf("声明 %s 失败: %w", key, err)
	}
	r.declared[key] = true
	return nil
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		DeliveryMode: deliveryMode,
		ContentType:  "application/json",
		Body:         message,
		Timestamp:    time.Now(),
	})
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// Config 返回队列配置
func (r *RabbitMQ) Config() *config.RabbitMQConfig {
	return r.cfg
}

// StartConsumer 启动消费者，返回的函数用于停止消费
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) Delivery) (stop func(), err error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	stopCh := make(chan struct{})
	var once sync.Once
	go func() {
		defer ch.Close()
		defer func() { log.Info().Str("queue", queueName).Msg("RabbitMQ消费者已停止") }()
		log.Info().Str("queue", queueName).Int("prefetch", prefetchCount).Msg("RabbitMQ消费者已启动")

		for {
			select {
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					log.Warn().Str("queue", queueName).Msg("RabbitMQ通道已关闭")
					return
				}
				var ackErr error
				switch handler(delivery.Body) {
				case DeliveryAck:
					ackErr = delivery.Ack(false)
				case DeliveryRequeue:
					ackErr = delivery.Nack(false, true)
				default:
					ackErr = delivery.Nack(false, false)
				}
				if ackErr != nil {
					log.Error().Err(ackErr).Str("queue", queueName).Msg("确认消息失败")
				}
			}
		}
	}()

	return func() { once.Do(func() { close(stopCh) }) }, nil
}
