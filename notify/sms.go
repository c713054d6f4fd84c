package notify

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore"
)

var _ authcore.SmsGateway = (*SMS)(nil)

// SMSMessage is the body published for one text message.
type SMSMessage struct {
	Phone  string            `json:"phone"`
	Params map[string]string `json:"params"`
}

// SMS publishes SMSMessages.
type SMS struct {
	publisher
	key string
}

// NewSMS publishes to cfg.Exchange with cfg.SMSKey as routing key.
func NewSMS(pub Publisher, cfg Config, opts ...Option) *SMS {
	return &SMS{
		publisher: newPublisher(pub, cfg.Exchange, opts),
		key:       cfg.SMSKey,
	}
}

// Send queues one SMS. A broker failure is returned as an error; a queued
// message reports Success.
func (s *SMS) Send(ctx context.Context, phone string, params map[string]string) (authcore.SmsResult, error) {
	if phone == "" {
		return authcore.SmsResult{}, errors.New("notify: phone is required")
	}
	if err := s.publish(ctx, s.key, SMSMessage{Phone: phone, Params: params}); err != nil {
		return authcore.SmsResult{}, err
	}
	return authcore.SmsResult{Success: true, Message: "queued"}, nil
}
