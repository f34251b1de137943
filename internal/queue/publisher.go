package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-sessions/internal/logger"
)

// DefaultPublishBuffer is the number of events Publish can queue ahead of
// the broker.
const DefaultPublishBuffer = 256

const (
	publishTimeout = 3 * time.Second
	drainTimeout   = 5 * time.Second
)

// ErrPublishQueueFull is returned by Publish when the background loop has
// fallen behind and the buffer is full.  The event is dropped.
var ErrPublishQueueFull = errors.New("publish queue full")

// Publisher sends reservation events to RabbitMQ.  Publish only enqueues;
// Run delivers the queue over one long-lived connection, so a slow broker
// never sits on the request path.
type Publisher struct {
	url    string
	queue  string
	events chan ReservationEvent
	send   func(ctx context.Context, ev ReservationEvent) error

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a publisher for the reservation events queue with
// room for buffer pending events (DefaultPublishBuffer when buffer < 1).
func NewPublisher(url string, buffer int) *Publisher {
	if buffer < 1 {
		buffer = DefaultPublishBuffer
	}
	p := &Publisher{url: url, queue: ReservationsQueue, events: make(chan ReservationEvent, buffer)}
	p.send = p.publish
	return p
}

// Publish queues ev for delivery without blocking.
func (p *Publisher) Publish(_ context.Context, ev ReservationEvent) error {
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrPublishQueueFull
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// left within drainTimeout and closes the connection.  A failed delivery
// is retried once on a fresh connection and then dropped with a log line.
func (p *Publisher) Run(ctx context.Context) {
	log := logger.WithFields("component", "reservation-publisher")
	defer p.disconnect()

	deliver := func(ctx context.Context, ev ReservationEvent) {
		var err error
		for attempt := 1; attempt <= 2; attempt++ {
			sctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = p.send(sctx, ev)
			cancel()
			if err == nil {
				return
			}
			p.disconnect()
		}
		log.Warn("reservation event dropped", "type", ev.Type, "reservation_id", ev.ReservationID, "error", err)
	}

	// Sends outlive a cancel of ctx; ctx only ends the loop.
	sendCtx := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		select {
		case ev := <-p.events:
			deliver(sendCtx, ev)
		case <-ctx.Done():
		}
	}

	dctx, cancel := context.WithTimeout(sendCtx, drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			deliver(dctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) connect() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.disconnect()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) disconnect() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// publish sends ev as a persistent JSON message on the default exchange.
func (p *Publisher) publish(ctx context.Context, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.connect(); err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
