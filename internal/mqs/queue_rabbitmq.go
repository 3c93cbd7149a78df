package mqs

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/rabbitpubsub"
)

// ============================== Config ==============================

type RabbitMQConfig struct {
	ServerURL string
	Exchange  string
	Queue     string
}

func (c *RabbitMQConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("RabbitMQ server URL is not set")
	}
	if c.Exchange == "" {
		return errors.New("RabbitMQ exchange is not set")
	}
	if c.Queue == "" {
		return errors.New("RabbitMQ queue is not set")
	}
	return nil
}

// ============================== Queue ==============================

type RabbitMQQueue struct {
	conn   *amqp091.Connection
	config *RabbitMQConfig
	topic  *pubsub.Topic
}

var _ Queue = &RabbitMQQueue{}

func NewRabbitMQQueue(config *RabbitMQConfig) *RabbitMQQueue {
	return &RabbitMQQueue{config: config}
}

func (q *RabbitMQQueue) Init(ctx context.Context) (func(), error) {
	if err := q.config.Validate(); err != nil {
		return nil, err
	}
	conn, err := amqp091.Dial(q.config.ServerURL)
	if err != nil {
		return nil, err
	}
	if err := q.declareInfrastructure(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	q.conn = conn
	q.topic = rabbitpubsub.OpenTopic(conn, q.config.Exchange, nil)
	return func() {
		q.topic.Shutdown(ctx)
		conn.Close()
	}, nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, incomingMessage IncomingMessage) error {
	msg, err := incomingMessage.ToMessage()
	if err != nil {
		return err
	}
	return q.topic.Send(ctx, &pubsub.Message{Body: msg.Body, Metadata: msg.Metadata})
}

func (q *RabbitMQQueue) Subscribe(ctx context.Context) (Subscription, error) {
	subscription := rabbitpubsub.OpenSubscription(q.conn, q.config.Queue, nil)
	return wrappedSubscription(subscription)
}

func (q *RabbitMQQueue) declareInfrastructure(_ context.Context, conn *amqp091.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	err = ch.ExchangeDeclare(
		q.config.Exchange, // name
		"fanout",          // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return err
	}
	queue, err := ch.QueueDeclare(
		q.config.Queue, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return err
	}
	err = ch.QueueBind(
		queue.Name,        // queue name
		"",                // routing key
		q.config.Exchange, // exchange
		false,
		nil,
	)
	return err
}
