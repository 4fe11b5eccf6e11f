package brokers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultConsumerGroup - группа потребителей по умолчанию
const DefaultConsumerGroup = "dbcon-consumer-group"

// Kafka - Source поверх топика Kafka. Offset фиксируется только в Ack.
type Kafka struct {
	config      Config
	writer      *kafka.Writer
	reader      *kafka.Reader
	lastMessage *kafka.Message
}

// NewKafka проверяет конфигурацию и заполняет значения по умолчанию
func NewKafka(cfg Config) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = DefaultConsumerGroup
	}
	return &Kafka{config: cfg}, nil
}

// Connect создает writer и reader и проверяет доступность топика
func (k *Kafka) Connect(ctx context.Context) error {
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        k.config.Topic,
		Balancer:     &kafka.Hash{}, // одинаковый ключ записи - одна партиция
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
	k.reader = k.newReader()
	return k.Ping(ctx)
}

func (k *Kafka) newReader() *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.config.Brokers,
		GroupID:        k.config.ConsumerGroup,
		Topic:          k.config.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // синхронная фиксация в Ack
		StartOffset:    kafka.FirstOffset,
		MaxWait:        time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})
}

// Close закрывает writer и reader
func (k *Kafka) Close() error {
	var errs []error
	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
		}
	}
	if k.reader != nil {
		if err := k.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Send публикует сообщение. Ключ сообщения - xxh3 отпечаток тела.
func (k *Kafka) Send(ctx context.Context, message []byte) error {
	if k.writer == nil {
		return ErrNotConnected
	}
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(MessageKey(message)),
		Value: message,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Receive читает следующее сообщение без фиксации offset
func (k *Kafka) Receive(ctx context.Context) ([]byte, error) {
	if k.reader == nil {
		return nil, ErrNotConnected
	}
	if k.lastMessage != nil {
		return nil, fmt.Errorf("previous message is not acknowledged")
	}
	msg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	k.lastMessage = &msg
	return msg.Value, nil
}

// Ack фиксирует offset последнего сообщения
func (k *Kafka) Ack(ctx context.Context) error {
	if k.lastMessage == nil {
		return ErrNoDelivery
	}
	if err := k.reader.CommitMessages(ctx, *k.lastMessage); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	k.lastMessage = nil
	return nil
}

// Nack без requeue пропускает сообщение (фиксирует offset).
// С requeue reader пересоздается, и группа продолжает чтение с последнего
// зафиксированного offset, то есть с этого же сообщения.
func (k *Kafka) Nack(ctx context.Context, requeue bool) error {
	if k.lastMessage == nil {
		return ErrNoDelivery
	}
	if !requeue {
		return k.Ack(ctx)
	}
	k.lastMessage = nil
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	k.reader = k.newReader()
	return nil
}

// Ping проверяет доступность брокера и топика
func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial Kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(k.config.Topic); err != nil {
		return fmt.Errorf("failed to read topic partitions: %w", err)
	}
	return nil
}

// Type возвращает тип брокера
func (k *Kafka) Type() string {
	return "kafka"
}

// Stats возвращает статистику reader и writer
func (k *Kafka) Stats() (kafka.ReaderStats, kafka.WriterStats) {
	var (
		rs kafka.ReaderStats
		ws kafka.WriterStats
	)
	if k.reader != nil {
		rs = k.reader.Stats()
	}
	if k.writer != nil {
		ws = k.writer.Stats()
	}
	return rs, ws
}
