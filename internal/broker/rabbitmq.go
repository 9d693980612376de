// Package broker is the optional RabbitMQ leg of the offline-push pipeline.
// When the router drops a newMessage for an unreachable user, the event is
// published here so a push worker can turn it into a notification. This is
// strictly one-way: nothing ever flows back into the realtime path, and
// dropped events are never replayed to a reconnecting client.
package broker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"dm_core/internal/events"
)

const ExchangePush = "dm.push"

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangePush, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare push exchange: %w", err)
	}

	return &RabbitMQClient{conn: conn, channel: ch}, nil
}

// MissedEvent implements router.MissSink. Only new messages become push
// notifications; ephemeral indicator events are dropped outright.
func (c *RabbitMQClient) MissedEvent(userID uuid.UUID, ev events.Event) {
	if _, ok := ev.(events.NewMessage); !ok {
		return
	}
	// Fire and forget; a publish failure must not affect the send path.
	_ = c.publish(context.Background(), fmt.Sprintf("user.%s", userID), ev)
}

func (c *RabbitMQClient) publish(ctx context.Context, routingKey string, ev events.Event) error {
	body, err := events.Marshal(ev)
	if err != nil {
		return err
	}
	return c.channel.PublishWithContext(ctx,
		ExchangePush, // exchange
		routingKey,   // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// ConsumePush binds a durable queue to the push exchange and consumes it.
func (c *RabbitMQClient) ConsumePush() (<-chan amqp.Delivery, error) {
	q, err := c.channel.QueueDeclare(
		"push_notifications", // name
		true,                 // durable
		false,                // delete when unused
		false,                // exclusive
		false,                // no-wait
		nil,                  // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare push queue: %w", err)
	}

	err = c.channel.QueueBind(
		q.Name,       // queue name
		"user.#",     // routing key
		ExchangePush, // exchange
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bind push queue: %w", err)
	}

	return c.channel.Consume(
		q.Name, "", false, false, false, false, nil,
	)
}

func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
