// Package relay fans comment events out across server instances over a
// RabbitMQ fanout exchange. Each instance publishes the events it produced
// and replays events from other instances into its local hub.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"contractlens/internal/util"
)

// Event is the wire envelope for one relayed message. Origin identifies the
// publishing instance so consumers can skip their own events.
type Event struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives events published by other instances.
type Handler func(topic string, payload json.RawMessage)

// AMQPRelay publishes and consumes relay events on one fanout exchange.
type AMQPRelay struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	origin   string
}

// NewAMQPRelay connects to RabbitMQ and declares the exchange plus an
// exclusive queue for this instance.
func NewAMQPRelay(url, exchange string) (*AMQPRelay, error) {
	if exchange == "" {
		exchange = "contractlens.comments"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", false, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	return &AMQPRelay{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    q.Name,
		origin:   util.NewID(),
	}, nil
}

// Publish sends an event to all instances, including this one. The local
// consumer drops it by origin.
func (r *AMQPRelay) Publish(ctx context.Context, topic string, payload json.RawMessage) error {
	body, err := json.Marshal(Event{Origin: r.origin, Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.ch.PublishWithContext(pubCtx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

// Start consumes relay events until ctx is done, invoking handler for every
// event that originated elsewhere.
func (r *AMQPRelay) Start(ctx context.Context, handler Handler) error {
	deliveries, err := r.ch.Consume(r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					slog.Warn("relay: drop undecodable event", "error", err)
					continue
				}
				if ev.Origin == r.origin || ev.Topic == "" {
					continue
				}
				handler(ev.Topic, ev.Payload)
			}
		}
	}()
	return nil
}

// Close tears down the channel and connection.
func (r *AMQPRelay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
