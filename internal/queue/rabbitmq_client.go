package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"interview-backend/internal/shared/telemetry"
)

// Disposition tells the consumer how to settle a delivery.
type Disposition int

const (
	// Ack removes the message from the queue.
	Ack Disposition = iota
	// Requeue returns the message to the queue for another consumer.
	Requeue
	// Drop rejects the message without requeueing it.
	Drop
)

// RabbitMQClient publishes and consumes queue messages on a durable RabbitMQ queue.
type RabbitMQClient struct {
	mu        sync.Mutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
}

// NewRabbitMQClient dials the broker and declares the durable queue.
func NewRabbitMQClient(url, queueName string) (*RabbitMQClient, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if strings.TrimSpace(queueName) == "" {
		return nil, fmt.Errorf("rabbitmq queue name is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare rabbitmq queue: %w", err)
	}
	return &RabbitMQClient{conn: conn, channel: channel, queueName: queueName}, nil
}

// Send publishes a persistent JSON message.
func (q *RabbitMQClient) Send(ctx context.Context, msg Message) error {
	pub, err := publishing(msg, time.Now())
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.channel.PublishWithContext(ctx, "", q.queueName, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Consume delivers messages to handle until ctx is canceled or the channel closes.
// At most concurrency handlers run at once; in-flight handlers finish before Consume returns.
func (q *RabbitMQClient) Consume(ctx context.Context, concurrency int, handle func(ctx context.Context, body string) Disposition) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.mu.Lock()
	if err := q.channel.Qos(concurrency, 0, false); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("rabbitmq qos: %w", err)
	}
	deliveries, err := q.channel.ConsumeWithContext(ctx, q.queueName, "", false, false, false, false, nil)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				settle(d, handle(ctx, string(d.Body)))
			}(d)
		}
	}
}

// Close closes the channel and connection.
func (q *RabbitMQClient) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func publishing(msg Message, now time.Time) (amqp.Publishing, error) {
	body, err := EncodeMessage(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode rabbitmq message: %w", err)
	}
	pub := amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		Body:          body,
		Timestamp:     now,
		CorrelationId: msg.RequestID,
		MessageId:     msg.SourceMessageID,
	}
	if msg.Reason != "" {
		pub.Headers = amqp.Table{"reason": msg.Reason}
	}
	return pub, nil
}

func settle(d amqp.Delivery, disposition Disposition) {
	var err error
	switch disposition {
	case Ack:
		err = d.Ack(false)
	case Requeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		telemetry.Error("queue.rabbitmq.settle_failed", map[string]any{
			"delivery_tag": d.DeliveryTag,
			"error":        err.Error(),
		})
	}
}

var _ Client = (*RabbitMQClient)(nil)
