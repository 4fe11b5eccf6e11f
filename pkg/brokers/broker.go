package brokers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ruslano69/dbcon/pkg/record"
)

var (
	// ErrNoMessage - очередь пуста, стоит повторить Receive позже
	ErrNoMessage = errors.New("no messages available")

	// ErrNotConnected - Connect не вызывался или соединение закрыто
	ErrNotConnected = errors.New("not connected to broker")

	// ErrNoDelivery - нет полученного неподтвержденного сообщения
	ErrNoDelivery = errors.New("no message to acknowledge")
)

// Source - очередь сообщений, из которой читаются записи.
// Сообщение остается неподтвержденным до Ack или Nack; одновременно
// обрабатывается одно сообщение.
type Source interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Receive возвращает тело следующего сообщения.
	// ErrNoMessage - сообщений пока нет.
	Receive(ctx context.Context) ([]byte, error)

	// Ack подтверждает последнее полученное сообщение
	Ack(ctx context.Context) error

	// Nack отклоняет последнее сообщение; requeue - вернуть его в очередь
	Nack(ctx context.Context, requeue bool) error

	// Send публикует сообщение (команда publish и тесты)
	Send(ctx context.Context, message []byte) error

	// Ping проверяет доступность брокера
	Ping(ctx context.Context) error

	// Type - тип брокера (rabbitmq, kafka)
	Type() string

	// Close закрывает соединение
	Close() error
}

// Config содержит параметры подключения к брокеру
type Config struct {
	Type string `yaml:"type"` // rabbitmq, kafka

	// RabbitMQ
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Queue      string `yaml:"queue,omitempty"`
	VHost      string `yaml:"vhost,omitempty"`
	UseTLS     bool   `yaml:"tls,omitempty"`
	Exchange   string `yaml:"exchange,omitempty"`    // пустая строка = default exchange
	RoutingKey string `yaml:"routing_key,omitempty"` // пустая строка = имя очереди

	// Параметры очереди должны совпадать с уже объявленной очередью
	Durable    bool `yaml:"durable,omitempty"`
	AutoDelete bool `yaml:"auto_delete,omitempty"`
	Exclusive  bool `yaml:"exclusive,omitempty"`

	// Kafka
	Brokers       []string `yaml:"brokers,omitempty"`
	Topic         string   `yaml:"topic,omitempty"`
	ConsumerGroup string   `yaml:"group,omitempty"`

	// PollInterval - пауза при пустой очереди RabbitMQ
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// New создает Source по типу из конфигурации
func New(cfg Config) (Source, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s (supported: rabbitmq, kafka)", cfg.Type)
	}
}

// Records разбирает тело сообщения: один JSON-объект, массив объектов
// или JSON Lines
func Records(body []byte) ([]*record.Record, error) {
	recs, err := record.DecodeJSONMany(body)
	if err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if len(recs) == 0 {
		return nil, errors.New("invalid message: no records")
	}
	return recs, nil
}
