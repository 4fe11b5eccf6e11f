package brokers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ - Source поверх очереди RabbitMQ с ручным подтверждением
type RabbitMQ struct {
	config       Config
	conn         *amqp.Connection
	channel      *amqp.Channel
	lastDelivery *amqp.Delivery
}

// NewRabbitMQ проверяет конфигурацию и заполняет значения по умолчанию
func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required for RabbitMQ")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		if cfg.UseTLS {
			cfg.Port = 5671
		} else {
			cfg.Port = 5672
		}
	}
	if cfg.VHost == "" {
		cfg.VHost = "/"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &RabbitMQ{config: cfg}, nil
}

// URL - строка подключения amqp(s)://user:password@host:port/vhost
func (r *RabbitMQ) URL() string {
	scheme := "amqp"
	if r.config.UseTLS {
		scheme = "amqps"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   r.config.Host + ":" + strconv.Itoa(r.config.Port),
		Path:   "/" + r.config.VHost,
	}
	if r.config.User != "" {
		u.User = url.UserPassword(r.config.User, r.config.Password)
	}
	if r.config.VHost == "/" {
		u.Path = "/"
	}
	return u.String()
}

// Connect открывает соединение, канал и объявляет очередь
func (r *RabbitMQ) Connect(ctx context.Context) error {
	var err error
	if r.config.UseTLS {
		r.conn, err = amqp.DialTLS(r.URL(), &tls.Config{
			ServerName: r.config.Host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		r.conn, err = amqp.Dial(r.URL())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Одно неподтвержденное сообщение за раз
	if err := r.channel.Qos(1, 0, false); err != nil {
		r.Close()
		return fmt.Errorf("failed to set qos: %w", err)
	}

	_, err = r.channel.QueueDeclare(
		r.config.Queue,
		r.config.Durable,
		r.config.AutoDelete,
		r.config.Exclusive,
		false,
		nil,
	)
	if err != nil {
		r.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// Close закрывает канал и соединение
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return fmt.Errorf("failed to close channel: %w", err)
		}
		r.channel = nil
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
		r.conn = nil
	}
	return nil
}

// Send публикует запись в очередь
func (r *RabbitMQ) Send(ctx context.Context, message []byte) error {
	if r.channel == nil {
		return ErrNotConnected
	}

	routingKey := r.config.RoutingKey
	if routingKey == "" {
		routingKey = r.config.Queue
	}
	err := r.channel.PublishWithContext(ctx, r.config.Exchange, routingKey, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         message,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Receive забирает одно сообщение через basic.get без auto-ack.
// При пустой очереди ждет PollInterval и возвращает ErrNoMessage.
func (r *RabbitMQ) Receive(ctx context.Context) ([]byte, error) {
	if r.channel == nil {
		return nil, ErrNotConnected
	}
	if r.lastDelivery != nil {
		return nil, fmt.Errorf("previous message is not acknowledged")
	}

	delivery, ok, err := r.channel.Get(r.config.Queue, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !ok {
		timer := time.NewTimer(r.config.PollInterval)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, ErrNoMessage
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.lastDelivery = &delivery
	return delivery.Body, nil
}

// Ack подтверждает последнее сообщение (удаляет из очереди)
func (r *RabbitMQ) Ack(context.Context) error {
	if r.lastDelivery == nil {
		return ErrNoDelivery
	}
	if err := r.lastDelivery.Ack(false); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	r.lastDelivery = nil
	return nil
}

// Nack отклоняет последнее сообщение
func (r *RabbitMQ) Nack(_ context.Context, requeue bool) error {
	if r.lastDelivery == nil {
		return ErrNoDelivery
	}
	if err := r.lastDelivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("failed to reject message: %w", err)
	}
	r.lastDelivery = nil
	return nil
}

// Ping проверяет, что соединение и канал открыты
func (r *RabbitMQ) Ping(context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return ErrNotConnected
	}
	if r.channel == nil || r.channel.IsClosed() {
		return fmt.Errorf("channel not open")
	}
	return nil
}

// Type возвращает тип брокера
func (r *RabbitMQ) Type() string {
	return "rabbitmq"
}
