package raucwebsvc

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange progress events are published to.
const DefaultExchange = "rauc.install"

// Publisher receives install progress events.
type Publisher interface {
	Publish(ctx context.Context, ev ProgressEvent) error
}

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes progress events as JSON messages to a fanout
// exchange, so that any number of listeners can follow an install.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	source   string
}

// NewAMQPPublisher dials url and declares exchange. source is set as the
// AppId of every message, typically the update service address.
func NewAMQPPublisher(url, exchange, source string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, source: source}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev ProgressEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		AppId:       p.source,
		Type:        string(ev.Kind),
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
