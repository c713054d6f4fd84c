// Package notify hands mail and SMS deliveries to RabbitMQ.
//
// [Mailer] is an authcore.MailDispatcher and [SMS] an authcore.SmsGateway.
// Both publish one persistent JSON message per delivery; a separate worker
// owns templates and the actual providers. A delivery counts as accepted
// once the broker took the message.
package notify
