package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer reads lobby.events and appends one line per event to an
// audit log file.
type AuditConsumer struct {
	URL     string
	Queue   string
	LogPath string
	Logger  *log.Logger
}

// NewAuditConsumer returns a consumer writing to logs/lobby_audit.log.
func NewAuditConsumer(url string, logger *log.Logger) *AuditConsumer {
	return &AuditConsumer{
		URL:     url,
		Queue:   LobbyEventsQueue,
		LogPath: filepath.Join("logs", "lobby_audit.log"),
		Logger:  logger,
	}
}

// errMalformed marks a delivery that can never be written, whatever the
// state of the disk.
var errMalformed = errors.New("malformed event")

// requeueDelay is how long the consumer pauses after putting a message
// back, so a full or read-only disk is not hammered.
var requeueDelay = time.Second

// acker is the part of amqp.Delivery used to settle a message.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Run connects to the broker, declares the queue (durable) and consumes
// until ctx is cancelled.  Connection failures are retried with
// exponential backoff capped at 30s.  Undecodable messages are rejected
// without requeue; messages that fail on the log file are requeued.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warnf("audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warnf("audit-consumer: consume loop ended: %v; reconnecting", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warnf("audit-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if !c.settle(ctx, d, c.handleMessage(d.Body)) {
				return ctx.Err()
			}
		}
	}
}

// settle acks d when err is nil, drops it when it is malformed and
// otherwise requeues it and waits requeueDelay.  It returns false if ctx
// ended during the wait.
func (c *AuditConsumer) settle(ctx context.Context, d acker, err error) bool {
	switch {
	case err == nil:
		_ = d.Ack(false)
		return true
	case errors.Is(err, errMalformed):
		c.Logger.Errorf("audit-consumer: dropping message: %v", err)
		_ = d.Nack(false, false)
		return true
	default:
		c.Logger.Warnf("audit-consumer: handle message failed: %v; requeueing", err)
		_ = d.Nack(false, true)
		return sleepCtx(ctx, requeueDelay)
	}
}

func (c *AuditConsumer) handleMessage(body []byte) error {
	var ev LedgerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errMalformed, err)
	}
	if ev.Type == "" || ev.LobbyName == "" {
		return fmt.Errorf("%w: event without type or lobby", errMalformed)
	}
	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders ev as a single human-friendly log line.
func FormatAuditLine(ev LedgerEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | lobby=%q | user_id=%q | count=%d->%d",
		ev.OccurredAt, ev.Type, ev.LobbyName, ev.UserID, ev.PreviousCount, ev.CurrentCount)
	if ev.BatchID != "" {
		fmt.Fprintf(&b, " | batch_id=%s | people=%d | volunteers=%d", ev.BatchID, ev.PeopleCount, ev.VolunteerCount)
	}
	if ev.Shortfall > 0 {
		fmt.Fprintf(&b, " | shortfall=%d", ev.Shortfall)
	}
	b.WriteByte('\n')
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
