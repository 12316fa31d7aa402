package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/campus-gate/internal/queue"
)

// EventPublisher delivers ledger events after a mutation commits.
// Publishing is best effort: the ledger logs failures and carries on.
type EventPublisher interface {
	Publish(ctx context.Context, event q.LedgerEvent) error
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED is off.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.LedgerEvent) error { return nil }

// Errors returned by AMQPPublisher.Publish.
var (
	ErrPublishBufferFull = errors.New("event buffer full, event dropped")
	ErrPublisherClosed   = errors.New("event publisher closed")
)

// AMQPPublisher publishes ledger events to a durable RabbitMQ queue from
// a background goroutine.  Publish only enqueues, so a slow or absent
// broker never delays a ledger response; when the buffer is full the
// event is dropped and Publish reports it.  After a failed dial the
// worker waits one timeout before dialing again and drops events in the
// meantime.
type AMQPPublisher struct {
	url     string
	queue   string
	timeout time.Duration
	log     Logger

	events    chan q.LedgerEvent
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by run
	conn     *amqp.Connection
	ch       *amqp.Channel
	nextDial time.Time
}

// NewAMQPPublisher starts a publisher for url that writes to queueName.
// buffer is the number of events that may wait for the broker.  Call
// Close to stop the worker.
func NewAMQPPublisher(url, queueName string, timeout time.Duration, buffer int, logger Logger) *AMQPPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = nopLogger{}
	}
	p := &AMQPPublisher{
		url:     url,
		queue:   queueName,
		timeout: timeout,
		log:     logger,
		events:  make(chan q.LedgerEvent, buffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish queues event for delivery.  It never blocks.
func (p *AMQPPublisher) Publish(_ context.Context, event q.LedgerEvent) error {
	select {
	case <-p.quit:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- event:
		return nil
	default:
		return ErrPublishBufferFull
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	defer p.reset()
	for {
		select {
		case ev := <-p.events:
			p.deliver(ev)
		case <-p.quit:
			// flush what is already queued, then stop
			for {
				select {
				case ev := <-p.events:
					p.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *AMQPPublisher) deliver(event q.LedgerEvent) {
	if err := p.send(event); err != nil {
		p.log.Warnf("events: drop %s for %s: %v", event.Type, event.LobbyName, err)
	}
}

// send publishes event as a persistent message.
func (p *AMQPPublisher) send(event q.LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         event.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return err
	}
	return nil
}

var errBrokerBackoff = errors.New("broker unreachable, waiting before reconnect")

// channel returns an open channel, dialing and declaring the queue if
// needed.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.nextDial) {
		return nil, errBrokerBackoff
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		p.nextDial = time.Now().Add(p.timeout)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// reset drops the current connection.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close stops accepting events, delivers the ones already queued and
// releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.quit) })
	<-p.done
	return nil
}
