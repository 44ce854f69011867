package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-interview-go/internal/storage/models"
)

// InsertOutbox 写入一条待投递消息，payload 会序列化为 JSON
func (m *MySQL) InsertOutbox(ctx context.Context, aggregateID, eventType, exchange, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化发件箱消息失败: %w", err)
	}
	msg := &models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          string(body),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxPending,
	}
	if err := m.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("写入发件箱失败 (aggregate=%s): %w", aggregateID, err)
	}
	return nil
}
