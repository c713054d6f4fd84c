package notify

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore"
)

var _ authcore.MailDispatcher = (*Mailer)(nil)

// MailMessage is the body published for one email.
type MailMessage struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// Mailer publishes MailMessages.
type Mailer struct {
	publisher
	keyPrefix string
}

// NewMailer publishes to cfg.Exchange with cfg.MailKeyPrefix + template
// as routing key.
func NewMailer(pub Publisher, cfg Config, opts ...Option) *Mailer {
	return &Mailer{
		publisher: newPublisher(pub, cfg.Exchange, opts),
		keyPrefix: cfg.MailKeyPrefix,
	}
}

// Send queues one templated email.
func (m *Mailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	if to == "" || template == "" {
		return errors.New("notify: recipient and template are required")
	}
	return m.publish(ctx, m.keyPrefix+template, MailMessage{To: to, Template: template, Data: data})
}
