// Package service holds the entry query/mutation and bulk transfer logic
// plus the publisher for audit events.
package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    q "github.com/iliyamo/address-book/internal/queue"
)

// EventPublisher delivers audit events. Publishing is best effort: callers
// log failures and carry on.
type EventPublisher interface {
    Publish(ctx context.Context, ev q.EntryEvent) error
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.EntryEvent) error { return nil }

// AMQPPublisher publishes events to the audit queue on RabbitMQ. Each call
// dials, declares the queue and publishes one persistent message; audit
// traffic is low enough that a held connection is not worth the recovery
// logic.
type AMQPPublisher struct {
    URL string
    Log *logrus.Logger
}

func NewAMQPPublisher(url string, log *logrus.Logger) *AMQPPublisher {
    return &AMQPPublisher{URL: url, Log: log}
}

// Publish sends ev to the audit queue. Errors are logged and returned.
func (p *AMQPPublisher) Publish(ctx context.Context, ev q.EntryEvent) error {
    log := p.Log.WithField("action", ev.Action)
    conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(2 * time.Second)})
    if err != nil {
        log.WithError(err).Warn("rabbitmq: dial failed")
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.WithError(err).Warn("rabbitmq: channel open failed")
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(q.AuditQueue, true, false, false, false, nil); err != nil {
        log.WithError(err).Warn("rabbitmq: queue declare failed")
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", q.AuditQueue, false, false, pub); err != nil {
        log.WithError(err).Warn("rabbitmq: publish failed")
        return err
    }
    return nil
}
