// Package publisher announces catalog changes on a RabbitMQ topic exchange.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"program_catalog/internal/domain"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
)

type Config struct {
	URL      string
	Exchange string
	// RoutingPrefix starts every routing key: <prefix>.<source>.<action>.
	RoutingPrefix string
	QueueName     string
	BindingKey    string
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *slog.Logger

	// publishes from concurrent sources share one channel
	mu sync.Mutex
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	if cfg.RoutingPrefix == "" {
		cfg.RoutingPrefix = "program"
	}
	if cfg.BindingKey == "" {
		cfg.BindingKey = cfg.RoutingPrefix + ".#"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"binding_key", cfg.BindingKey,
	)

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Without a queue the exchange is publish-only; consumers bind their own.
	if cfg.QueueName == "" {
		return nil
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.BindingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ProgramMessage is the body of every published event.
type ProgramMessage struct {
	Action    string         `json:"action"`
	Program   domain.Program `json:"program"`
	Timestamp time.Time      `json:"timestamp"`
}

func newMessage(program *domain.Program, isNew bool, now time.Time) ProgramMessage {
	action := ActionUpdated
	if isNew {
		action = ActionCreated
	}
	return ProgramMessage{
		Action:    action,
		Program:   *program,
		Timestamp: now.UTC(),
	}
}

func routingKey(prefix string, program *domain.Program, action string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, program.DataSource, action)
}

func (r *RabbitMQ) Publish(ctx context.Context, program *domain.Program, isNew bool) error {
	msg := newMessage(program, isNew, time.Now())

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := routingKey(r.cfg.RoutingPrefix, program, msg.Action)

	r.mu.Lock()
	err = r.channel.PublishWithContext(
		ctx,
		r.cfg.Exchange,
		key,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    program.ID.String(),
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published program",
		"source_api_id", program.SourceAPIID,
		"routing_key", key,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
