package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/restaurant/internal/core/domain"
)

const DefaultExchange = "order_status_fanout"

type RabbitConfig struct {
	URL      string
	Exchange string
	UseTLS   bool
}

// RabbitPublisher publishes status changes to a fanout exchange and waits for
// the broker to confirm each message.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string

	acks <-chan amqp.Confirmation
	mu   sync.Mutex // confirms arrive in publish order, so publishes are serialised
}

func DialRabbit(cfg RabbitConfig) (*RabbitPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	var (
		conn *amqp.Connection
		err  error
	)
	if cfg.UseTLS {
		conn, err = amqp.DialTLS(cfg.URL, &tls.Config{MinVersion: tls.VersionTLS12})
	} else {
		conn, err = amqp.Dial(cfg.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", cfg.Exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	return &RabbitPublisher{conn: conn, ch: ch, exchange: cfg.Exchange, acks: acks}, nil
}

func (p *RabbitPublisher) Name() string { return "rabbitmq" }

func (p *RabbitPublisher) Ping() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (p *RabbitPublisher) HandleStatusChange(ctx context.Context, c domain.StatusChange) error {
	body, err := json.Marshal(newStatusMessage(c))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		"", // fanout ignores the routing key
		false,
		false,
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			MessageId:     uuid.NewString(),
			CorrelationId: c.OrderID,
			Timestamp:     time.Now().UTC(),
			Headers: amqp.Table{
				"x-source": "fulfillment-engine",
				"x-status": string(c.To),
			},
			Body: body,
		},
	); err != nil {
		return err
	}

	select {
	case conf := <-p.acks:
		if conf.Ack {
			return nil
		}
		return errors.New("publish NACK from broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RabbitPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
