package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Delivery 是跨实例转发的一帧。Room 为空表示发给所有连接。
type Delivery struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room,omitempty"`
	Skip   string          `json:"skip,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Broker 在多个 Hub 实例之间转发房间与全局事件。
type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe 确认订阅成功后返回，之后在后台调用 handler，直到 ctx 结束。
	Subscribe(ctx context.Context, handler func(Delivery)) error
}

// DefaultBrokerChannel 是 Redis Pub/Sub 频道名。
const DefaultBrokerChannel = "safechat:deliveries"

// RedisBroker 基于 Redis Pub/Sub。
type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultBrokerChannel
	}
	return &RedisBroker{client: client, channel: channel}
}

func (b *RedisBroker) Publish(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, handler func(Delivery)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var d Delivery
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					log.Warn().Err(err).Msg("[realtime] dropping malformed delivery")
					continue
				}
				handler(d)
			}
		}
	}()
	return nil
}
