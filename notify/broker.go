package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the part of *amqp.Channel the publishers use.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Config names the exchange and routing keys. Mail routing keys get the
// template appended: "mail.confirm-email".
type Config struct {
	Exchange      string `env:"NOTIFY_EXCHANGE" envDefault:"authcore.notify"`
	MailKeyPrefix string `env:"NOTIFY_MAIL_KEY_PREFIX" envDefault:"mail."`
	SMSKey        string `env:"NOTIFY_SMS_KEY" envDefault:"sms.otp"`
}

// DefaultConfig returns the default exchange and routing keys.
func DefaultConfig() Config {
	return Config{
		Exchange:      "authcore.notify",
		MailKeyPrefix: "mail.",
		SMSKey:        "sms.otp",
	}
}

// Broker owns a RabbitMQ connection and the channel both publishers share.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to url and declares cfg.Exchange as a durable topic
// exchange.
func Dial(url string, cfg Config) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	return &Broker{conn: conn, channel: ch}, nil
}

// Channel returns the shared publishing channel.
func (b *Broker) Channel() *amqp.Channel {
	if b == nil {
		return nil
	}
	return b.channel
}

// Close closes the channel and the connection.
func (b *Broker) Close() error {
	if b == nil {
		return nil
	}
	var errs []error
	if b.channel != nil {
		errs = append(errs, b.channel.Close())
	}
	if b.conn != nil {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}

type publisher struct {
	pub      Publisher
	exchange string
	logger   *zap.Logger
	now      func() time.Time
}

func (p *publisher) publish(ctx context.Context, key string, body any) error {
	if p.pub == nil {
		return errors.New("notify: publisher is not initialized")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now(),
		Body:         payload,
	}
	if err := p.pub.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		p.logger.Warn("notify publish failed", zap.String("routing_key", key), zap.Error(err))
		return fmt.Errorf("publish %s: %w", key, err)
	}

	p.logger.Debug("notify published", zap.String("routing_key", key), zap.String("message_id", msg.MessageId))
	return nil
}

// Option configures a publisher.
type Option func(*publisher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the message timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(p *publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func newPublisher(pub Publisher, exchange string, opts []Option) publisher {
	p := publisher{
		pub:      pub,
		exchange: exchange,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
