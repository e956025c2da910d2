// Package nats implements the message queue port using NATS JetStream.
// Post-commit tasks (media migration, invitation emails) flow through it.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/backoffice/internal/config"
	"github.com/Strob0t/backoffice/internal/logger"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
)

// dlqSuffix is appended to a subject to form its dead-letter subject.
const dlqSuffix = ".dlq"

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc         *nats.Conn
	js         jetstream.JetStream
	stream     string
	maxDeliver int
	backoff    []time.Duration
}

// Connect establishes a connection to NATS and ensures the task stream exists.
func Connect(ctx context.Context, cfg config.NATS, tasks config.Tasks) (*Queue, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("backoffice"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.TaskStream,
		Subjects: []string{"tasks.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", cfg.TaskStream)
	return &Queue{
		nc:         nc,
		js:         js,
		stream:     cfg.TaskStream,
		maxDeliver: max(tasks.MaxDeliver, 1),
		backoff:    tasks.Backoff,
	}, nil
}

// JetStream exposes the JetStream context, used to open the KV cache bucket
// on the same connection.
func (q *Queue) JetStream() jetstream.JetStream {
	return q.js
}

// Publish validates the payload against its subject schema and sends it.
// The request ID of ctx travels in a header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(messagequeue.HeaderRequestID, reqID)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a durable consumer for subject. A failed handler is
// retried with the configured backoff; once MaxDeliver attempts are spent, or
// when the payload fails validation, the message moves to subject+".dlq".
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       consumerName(subject),
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    q.maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	ctx := context.Background()
	if reqID := msg.Headers().Get(messagequeue.HeaderRequestID); reqID != "" {
		ctx = logger.WithRequestID(ctx, reqID)
	}
	subject := msg.Subject()

	if err := messagequeue.Validate(subject, msg.Data()); err != nil {
		slog.ErrorContext(ctx, "invalid task payload", "subject", subject, "error", err)
		q.moveToDLQ(ctx, msg)
		return
	}

	err := handler(ctx, subject, msg.Data())
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			slog.ErrorContext(ctx, "nats ack failed", "error", ackErr)
		}
		return
	}

	delivered := 1
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivered = int(meta.NumDelivered)
	}
	if delivered >= q.maxDeliver {
		slog.ErrorContext(ctx, "task failed, retries exhausted", "subject", subject, "attempts", delivered, "error", err)
		q.moveToDLQ(ctx, msg)
		return
	}

	delay := backoffFor(delivered, q.backoff)
	slog.WarnContext(ctx, "task failed, retrying", "subject", subject, "attempt", delivered, "retry_in", delay, "error", err)
	if nakErr := msg.NakWithDelay(delay); nakErr != nil {
		slog.ErrorContext(ctx, "nats nak failed", "error", nakErr)
	}
}

func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlq := &nats.Msg{Subject: msg.Subject() + dlqSuffix, Data: msg.Data(), Header: msg.Headers()}
	if _, err := q.js.PublishMsg(ctx, dlq); err != nil {
		slog.ErrorContext(ctx, "dlq publish failed", "subject", dlq.Subject, "error", err)
		return
	}
	if err := msg.Term(); err != nil {
		slog.ErrorContext(ctx, "nats term failed", "error", err)
	}
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

// consumerName derives a durable consumer name from a subject;
// "tasks.media.migrate" becomes "tasks_media_migrate".
func consumerName(subject string) string {
	return strings.NewReplacer(".", "_", "*", "any", ">", "all").Replace(subject)
}

// backoffFor returns the delay before the next attempt after attempt n
// (1-based). Attempts past the schedule reuse its last step.
func backoffFor(n int, schedule []time.Duration) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	i := min(max(n-1, 0), len(schedule)-1)
	return schedule[i]
}
