package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
)

// ConsumerConfig mirrors config.MailerConfig without importing it.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	BindKey  string
	Prefetch int
	Tag      string
}

// ResetTokenClearer drops a user's pending reset token.
type ResetTokenClearer interface {
	ClearResetToken(ctx context.Context, id string) error
}

// Consumer drains the mail queue and hands each job to a sender. Failed jobs
// are requeued once; after that, or on a permanent failure, they are
// dead-lettered to <queue>.dlq and any reset token they carried is cleared.
type Consumer struct {
	cfg    ConsumerConfig
	sender auth.Mailer
	resets ResetTokenClearer
	lg     zerolog.Logger

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}

	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewConsumer(cfg ConsumerConfig, sender auth.Mailer, lg zerolog.Logger) *Consumer {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.BindKey == "" {
		cfg.BindKey = DefaultRoutingKey
	}
	return &Consumer{
		cfg:    cfg,
		sender: sender,
		lg:     lg.With().Str("component", "mail_consumer").Logger(),
	}
}

// WithResetClearer makes dead-lettered reset mails void their token, so a
// link that was never delivered cannot be used later.
func (c *Consumer) WithResetClearer(r ResetTokenClearer) *Consumer {
	c.resets = r
	return c
}

func (c *Consumer) dlqName() string { return c.cfg.Queue + ".dlq" }

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if c.sender == nil {
		return fmt.Errorf("nil sender")
	}
	if c.cfg.Queue == "" {
		return fmt.Errorf("empty queue name")
	}

	c.doneCh = make(chan struct{})
	c.running = true
	go c.run(ctx)
	return nil
}

// Stop closes the connection and waits for the supervisor to exit.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	doneCh := c.doneCh
	c.running = false
	c.mu.Unlock()

	c.closeConn()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Consumer) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		doneCh := c.doneCh
		c.doneCh = nil
		c.running = false
		c.mu.Unlock()
		if doneCh != nil {
			close(doneCh)
		}
	}()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for ctx.Err() == nil && c.isRunning() {
		if err := c.connectAndDeclare(); err != nil {
			c.lg.Error().Err(err).Dur("backoff", backoff).Msg("connect failed; retrying")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = time.Second
		c.consumeLoop(ctx)
		if ctx.Err() != nil || !c.isRunning() {
			return
		}

		c.lg.Warn().Msg("deliveries closed; reconnecting")
		c.closeConn()
		if !sleepOrDone(ctx, backoff) {
			return
		}
	}
}

func (c *Consumer) connectAndDeclare() error {
	c.closeConn()

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("exchange declare", err)
	}
	if _, err := ch.QueueDeclare(c.dlqName(), true, false, false, false, nil); err != nil {
		return fail("dlq declare", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": c.dlqName(),
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args); err != nil {
		return fail("queue declare", err)
	}
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.BindKey, c.cfg.Exchange, false, nil); err != nil {
		return fail("queue bind", err)
	}
	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fail("qos", err)
		}
	}
	dlv, err := ch.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fail("consume", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.ch = ch
	c.deliveries = dlv
	c.mu.Unlock()

	c.lg.Info().
		Str("exchange", c.cfg.Exchange).
		Str("queue", c.cfg.Queue).
		Str("bind_key", c.cfg.BindKey).
		Int("prefetch", c.cfg.Prefetch).
		Msg("mail consumer ready")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	c.mu.Lock()
	dlv := c.deliveries
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-dlv:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

// handle delivers one job and settles the delivery.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	lg := c.lg.With().Str("message_id", d.MessageId).Logger()

	msg, err := decodeJob(d.Body)
	if err != nil {
		_ = d.Nack(false, false)
		lg.Error().Err(err).Msg("bad mail job; dead-lettered")
		return
	}

	err = c.sender.Send(ctx, msg)
	switch {
	case err == nil:
		_ = d.Ack(false)
		lg.Info().Dur("took", time.Since(start)).Msg("mail delivered")
	case isPermanent(err) || d.Redelivered:
		_ = d.Nack(false, false)
		lg.Error().Err(err).Bool("redelivered", d.Redelivered).Msg("mail failed; dead-lettered")
		c.voidResetToken(ctx, msg.ResetUserID, lg)
	default:
		_ = d.Nack(false, true)
		lg.Warn().Err(err).Msg("mail failed; requeued")
	}
}

func (c *Consumer) voidResetToken(ctx context.Context, userID string, lg zerolog.Logger) {
	if userID == "" || c.resets == nil {
		return
	}
	if err := c.resets.ClearResetToken(ctx, userID); err != nil {
		lg.Error().Err(err).Str("user_id", userID).Msg("reset token not cleared after dead-letter")
		return
	}
	lg.Info().Str("user_id", userID).Msg("reset token cleared after dead-letter")
}

func decodeJob(body []byte) (auth.Email, error) {
	var msg auth.Email
	if err := json.Unmarshal(body, &msg); err != nil {
		return auth.Email{}, fmt.Errorf("decode mail job: %w", err)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(msg.To)); err != nil {
		return auth.Email{}, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	if msg.Subject == "" && msg.Body == "" {
		return auth.Email{}, errors.New("empty mail job")
	}
	return msg, nil
}

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.deliveries = nil
}
