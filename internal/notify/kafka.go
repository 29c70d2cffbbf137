package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/events"
)

// MessageWriter is satisfied by *kafka.Writer and test doubles.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer bound to topic. Messages with the same key land on the
// same partition, so versions of one filing stay ordered. An empty topic uses
// events.TopicFilingIngested.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = events.TopicFilingIngested
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// Kafka publishes each filing as an events.FilingIngested keyed by filing id.
type Kafka struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafka returns a Kafka notifier over writer.
func NewKafka(writer MessageWriter) *Kafka {
	return &Kafka{writer: writer, now: time.Now}
}

// Name implements Named.
func (k *Kafka) Name() string { return "kafka" }

// Notify implements Notifier. The batch is written in one call.
func (k *Kafka) Notify(ctx context.Context, filings []domain.Filing) error {
	if len(filings) == 0 {
		return nil
	}
	now := k.now()
	msgs := make([]kafka.Message, 0, len(filings))
	for _, f := range filings {
		body, err := json.Marshal(events.NewFilingIngested(f, now))
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", domain.ErrNotification, f.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(f.ID),
			Value:   body,
			Time:    now,
			Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.TypeFilingIngested)}},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("%w: kafka: %v", domain.ErrNotification, err)
	}
	return nil
}
