// Package rabbitmq moves apply jobs between the API and background workers.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/forPelevin/nledit/internal/ports"
)

const DefaultQueue = "nledit.apply"

type Producer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewProducer(url, queue string) (*Producer, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Producer{conn: conn, ch: ch, queue: queue}, nil
}

// Publish sends job as a persistent message. The idempotency key doubles as
// the message id so redeliveries can be traced.
func (p *Producer) Publish(ctx context.Context, job ports.ApplyJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.IdempotencyKey,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return closeAll(p.ch, p.conn)
}

// Handler processes one job. Returning an error wrapped with Permanent acks
// the message; any other error requeues it.
type Handler func(ctx context.Context, job ports.ApplyJob) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *zap.Logger
}

func NewConsumer(url, queue string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = closeAll(ch, conn)
		return nil, fmt.Errorf("error to declare queue: %w", err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = closeAll(ch, conn)
		return nil, fmt.Errorf("error QoS: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, logger: logger.Named("rabbitmq")}, nil
}

// Run consumes until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", c.queue, err)
	}
	c.logger.Info("consuming", zap.String("queue", c.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.handle(ctx, d, h)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	log := c.logger.With(zap.String("message_id", d.MessageId), zap.Bool("redelivered", d.Redelivered))

	var job ports.ApplyJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Error("dropping malformed job", zap.Error(err), zap.Int("bytes", len(d.Body)))
		_ = d.Nack(false, false)
		return
	}
	log = log.With(zap.String("video_id", job.VideoID))

	err := h(ctx, job)
	switch {
	case err == nil:
		log.Info("job done")
		_ = d.Ack(false)
	case IsPermanent(err):
		log.Warn("job failed permanently", zap.Error(err))
		_ = d.Ack(false)
	default:
		log.Warn("job failed; requeueing", zap.Error(err))
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) Close() error {
	return closeAll(c.ch, c.conn)
}

func closeAll(ch *amqp.Channel, conn *amqp.Connection) error {
	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}
