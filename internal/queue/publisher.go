// Package queue publishes recorded notifications to RabbitMQ for delivery
// by a separate worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/spacebook/internal/domain"
)

const DefaultQueue = "booking.notifications"

type NotificationMessage struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Type        string    `json:"type"`
	BookingID   uuid.UUID `json:"booking_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher keeps one connection and channel open. amqp channels are not
// safe for concurrent publishing, so Publish is serialised.
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	const op = "queue.NewPublisher"

	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: channel: %w", op, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: declare %s: %w", op, queue, err)
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish implements notify.Sink.
func (p *Publisher) Publish(ctx context.Context, n domain.Notification) error {
	const op = "queue.Publisher.Publish"

	pub, err := encode(n)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.ch.Close()
	return p.conn.Close()
}

func encode(n domain.Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(NotificationMessage{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        string(n.Type),
		BookingID:   n.BookingID,
		Title:       n.Title,
		Body:        n.Body,
		CreatedAt:   n.CreatedAt,
	})
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID.String(),
		Type:         string(n.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
