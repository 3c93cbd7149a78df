package mqs

import (
	"context"
	"sync/atomic"
)

// Message is the transport-agnostic unit exchanged through a Queue. Ack and
// Nack delegate to the underlying broker when it supports acknowledgement;
// the first call settles the message and later calls are no-ops.
type Message struct {
	Body     []byte
	Metadata map[string]string

	acker   acker
	settled atomic.Bool
}

type acker interface {
	Ack()
	Nack()
}

func (m *Message) Ack() {
	if m.acker != nil && m.settled.CompareAndSwap(false, true) {
		m.acker.Ack()
	}
}

func (m *Message) Nack() {
	if m.acker != nil && m.settled.CompareAndSwap(false, true) {
		m.acker.Nack()
	}
}

// IncomingMessage is implemented by payload types that travel through a Queue.
type IncomingMessage interface {
	FromMessage(*Message) error
	ToMessage() (*Message, error)
}

type Queue interface {
	// Init establishes connections and declares broker infrastructure.
	// The returned func tears everything down.
	Init(ctx context.Context) (func(), error)
	Publish(ctx context.Context, incomingMessage IncomingMessage) error
	Subscribe(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	Receive(ctx context.Context) (*Message, error)
	Shutdown(ctx context.Context) error
}

// ============================== Config ==============================

type QueueConfig struct {
	RabbitMQ *RabbitMQConfig
	InMemory *InMemoryConfig
}

// NewQueue selects the queue driver from the config. Exactly one driver should
// be set; with none set it falls back to an in-memory queue.
func NewQueue(config *QueueConfig) Queue {
	if config != nil && config.RabbitMQ != nil {
		return NewRabbitMQQueue(config.RabbitMQ)
	}
	if config != nil && config.InMemory != nil {
		return NewInMemoryQueue(config.InMemory)
	}
	return NewInMemoryQueue(nil)
}
