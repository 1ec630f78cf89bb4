package mq

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher 是 Emitter 依赖的最小发布能力，*RabbitMQ 满足该接口。
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Emitter 把审核事件序列化后发往指定 exchange。
type Emitter struct {
	publisher Publisher
	exchange  string
}

// NewEmitter 创建事件发布者。
func NewEmitter(publisher Publisher, exchange string) *Emitter {
	return &Emitter{publisher: publisher, exchange: exchange}
}

// Emit 以 routingKey 发布 payload 的 JSON。
func (e *Emitter) Emit(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	if err := e.publisher.Publish(ctx, e.exchange, routingKey, body); err != nil {
		return fmt.Errorf("publish %s event: %w", routingKey, err)
	}
	return nil
}

// SetupModerationExchange 声明审核事件使用的 topic exchange。
func SetupModerationExchange(mq *RabbitMQ, exchange string) error {
	if err := mq.DeclareExchange(exchange, ExchangeTypeTopic); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// ModerationRoutingKey 匹配全部审核事件。
const ModerationRoutingKey = "moderation.*"
