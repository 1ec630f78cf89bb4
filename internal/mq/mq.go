package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeTypeTopic  = "topic"
	ExchangeTypeFanout = "fanout"
)

// RabbitMQ 持有一个连接和一个 channel。
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect 连接 RabbitMQ 并打开 channel。
func Connect(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	return &RabbitMQ{conn: conn, channel: ch}, nil
}

// DeclareExchange 声明持久化 exchange。
func (mq *RabbitMQ) DeclareExchange(name, exchangeType string) error {
	return mq.channel.ExchangeDeclare(
		name,         // exchange name
		exchangeType, // type: topic or fanout
		true,         // durable
		false,        // autoDelete
		false,        // internal
		false,        // noWait
		nil,          // arguments
	)
}

// DeclareQueue 声明队列并绑定到 exchange。queueName 为空时创建独占的临时队列。
func (mq *RabbitMQ) DeclareQueue(queueName, exchangeName, routingKey string) (amqp.Queue, error) {
	durable, exclusive := true, false
	if queueName == "" {
		durable, exclusive = false, true
	}

	queue, err := mq.channel.QueueDeclare(
		queueName, // queue name
		durable,   // durable
		!durable,  // autoDelete
		exclusive, // exclusive
		false,     // noWait
		nil,       // arguments
	)
	if err != nil {
		return queue, err
	}

	err = mq.channel.QueueBind(
		queue.Name,   // queue name
		routingKey,   // routing key
		exchangeName, // exchange name
		false,        // noWait
		nil,          // arguments
	)
	return queue, err
}

// Publish 发布一条 JSON 消息。
func (mq *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return mq.channel.PublishWithContext(
		ctx,
		exchange,   // exchange name
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume 在后台 goroutine 中把消息交给 handler，ctx 结束时停止。
func (mq *RabbitMQ) Consume(ctx context.Context, queueName string, handler func(routingKey string, body []byte)) error {
	msgs, err := mq.channel.Consume(
		queueName, // queue name
		"",        // consumer
		true,      // autoAck
		false,     // exclusive
		false,     // noLocal
		false,     // noWait
		nil,       // arguments
	)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				handler(msg.RoutingKey, msg.Body)
			}
		}
	}()
	return nil
}

// Close 关闭 channel 与连接。
func (mq *RabbitMQ) Close() error {
	if err := mq.channel.Close(); err != nil {
		_ = mq.conn.Close()
		return err
	}
	return mq.conn.Close()
}
