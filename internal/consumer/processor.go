// Package consumer relays filing events from Kafka to chat.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ellenzeng3/lda-filing-bot/internal/events"
	"github.com/ellenzeng3/lda-filing-bot/internal/observability"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, m Message) error { return f(ctx, m) }

// Message is a decoded filing event and its Kafka coordinates.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Event     events.FilingIngested
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryDelay sets the pause after a fetch error.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) { p.retryDelay = d }
}

// WithHandlerRetries sets how many times a failing handler is retried, starting at delay
// and doubling, before the message is dropped.
func WithHandlerRetries(retries int, delay time.Duration) Option {
	return func(p *Processor) {
		p.handlerRetries = retries
		p.handlerDelay = delay
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     logrus.FieldLogger
	retryDelay time.Duration

	handlerRetries int
	handlerDelay   time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     logrus.StandardLogger().WithField("component", "consumer"),
		retryDelay: time.Second,

		handlerRetries: 4,
		handlerDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until ctx is cancelled. Malformed messages are committed and dropped.
// A failing handler is retried in place; once retries run out the message is logged, counted
// as failed and committed, because committing any later offset would skip it anyway.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.WithError(err).Warn("fetch error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
			continue
		}

		log := p.logger.WithFields(logrus.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset})
		decoded, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			log.WithError(decodeErr).Warn("dropping malformed message")
			observability.ConsumerMessages.WithLabelValues("skipped").Inc()
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				log.WithError(commitErr).Warn("commit error after decode failure")
			}
			continue
		}

		result := "processed"
		if handleErr := p.handle(ctx, decoded, log); handleErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(handleErr).WithField("filing_id", decoded.Event.FilingID).Error("dropping message after handler retries")
			result = "failed"
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			log.WithError(commitErr).Warn("commit error")
			continue
		}
		observability.ConsumerMessages.WithLabelValues(result).Inc()
	}
}

func (p *Processor) handle(ctx context.Context, m Message, log logrus.FieldLogger) error {
	op := func() error { return p.handler.Handle(ctx, m) }

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.handlerDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.handlerRetries)), ctx)

	return backoff.RetryNotify(op, policy, func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next).Warn("handler error")
	})
}

func decodeMessage(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	if string(eventType) != events.TypeFilingIngested {
		return Message{}, fmt.Errorf("unexpected event_type %q", eventType)
	}

	var evt events.FilingIngested
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return Message{}, fmt.Errorf("decode payload: %w", err)
	}
	if evt.FilingID == "" {
		return Message{}, errors.New("payload has no filing_uuid")
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Event:     evt,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
