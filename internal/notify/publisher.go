// Package notify publishes domain events to RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Be1newinner/asaan-hai-coding/internal/content"
)

const publishTimeout = 3 * time.Second

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func() (channel, io.Closer, error)

// LeadCreated is the message body sent for each new lead.
type LeadCreated struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	Subject   *string   `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher sends lead events to a durable queue over one long-lived
// connection, redialing after a failure.
type Publisher struct {
	queue string
	dial  dialFunc
	now   func() time.Time

	mu   sync.Mutex
	ch   channel
	conn io.Closer
}

var _ content.LeadEvents = (*Publisher)(nil)

// NewPublisher connects lazily on the first event.
func NewPublisher(url, queue string) *Publisher {
	return newPublisher(queue, func() (channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		return ch, conn, nil
	})
}

func newPublisher(queue string, dial dialFunc) *Publisher {
	return &Publisher{queue: queue, dial: dial, now: time.Now}
}

// LeadCreated publishes l as a persistent JSON message.
func (p *Publisher) LeadCreated(ctx context.Context, l *content.Lead) error {
	body, err := json.Marshal(LeadCreated{
		ID:        l.ID.String(),
		Name:      l.Name,
		Email:     l.Email,
		Phone:     l.Phone,
		Subject:   l.Subject,
		CreatedAt: l.CreatedAt,
	})
	if err != nil {
		return err
	}
	return p.publish(ctx, body)
}

func (p *Publisher) publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connect(); err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// connect dials and declares the queue. Callers hold mu.
func (p *Publisher) connect() error {
	ch, conn, err := p.dial()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.ch, p.conn = ch, conn
	return nil
}

// reset drops the current connection. Callers hold mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
