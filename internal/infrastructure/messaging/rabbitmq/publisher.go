package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
)

const (
	DefaultExchange   = "user.events"
	DefaultRoutingKey = "user.password.reset"

	// Upper bound on waiting for the broker's confirm.
	confirmWait = 2 * time.Second
	// A Return for an unroutable message may be dispatched just after its Ack.
	returnGrace = 50 * time.Millisecond
)

// Publisher queues outgoing mail as JSON jobs. It implements auth.Mailer:
// Send returns nil only once the broker confirmed a routed message.
type Publisher struct {
	url        string
	exchange   string
	routingKey string

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url, exchange, routingKey string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	p := &Publisher{url: url, exchange: exchange, routingKey: routingKey}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetConn()
	return nil
}

func (p *Publisher) Send(ctx context.Context, msg auth.Email) error {
	pub, err := newPublishing(msg, time.Now())
	if err != nil {
		return err
	}
	return p.publish(ctx, pub)
}

func newPublishing(msg auth.Email, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal mail job: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    now.UTC(),
		Type:         "mail.send",
		Body:         body,
	}, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *Publisher) ensureConnected() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.resetConn()
	return p.connect()
}

func (p *Publisher) publish(ctx context.Context, pub amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureConnected(); err != nil {
		return err
	}

	// drop leftovers from an earlier timed out publish
drain:
	for {
		select {
		case <-p.confirmCh:
		case <-p.returnCh:
		default:
			break drain
		}
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, true, false, pub); err != nil {
		p.resetConn()
		return fmt.Errorf("publish failed: %w", err)
	}

	timer := time.NewTimer(confirmWait)
	defer timer.Stop()

	select {
	case ret := <-p.returnCh:
		return unroutable(p.routingKey, ret)

	case conf := <-p.confirmCh:
		grace := time.NewTimer(returnGrace)
		defer grace.Stop()
		select {
		case ret := <-p.returnCh:
			return unroutable(p.routingKey, ret)
		case <-grace.C:
		}
		if !conf.Ack {
			return fmt.Errorf("rabbitmq nack: key=%s deliveryTag=%d", p.routingKey, conf.DeliveryTag)
		}
		return nil

	case <-timer.C:
		return fmt.Errorf("rabbitmq publish timeout: key=%s", p.routingKey)

	case <-ctx.Done():
		return ctx.Err()
	}
}

func unroutable(key string, ret amqp.Return) error {
	return fmt.Errorf("rabbitmq unroutable: key=%s code=%d text=%s", key, ret.ReplyCode, ret.ReplyText)
}

func (p *Publisher) resetConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
