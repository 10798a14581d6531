package backing

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each record to a kafka topic named after its stream.
// Records are keyed by bus topic so one topic stays on one partition.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer for brokers. The topic is taken from each message.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (k *KafkaSink) Write(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, kafka.Message{
			Topic: kafkaTopic(rec.Stream),
			Key:   []byte(rec.Topic),
			Value: rec.Payload,
			Headers: []kafka.Header{
				{Key: "ts_init", Value: []byte(strconv.FormatUint(uint64(rec.TsInit), 10))},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "kafka write").With("messages", len(msgs))
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

// kafkaTopic maps a stream key to a legal kafka topic name.
func kafkaTopic(stream string) string {
	b := []byte(stream)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
