package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/utils"
)

const (
	NotificationsExchange = "notifications_fanout"
	publishTimeout        = 5 * time.Second
)

// FanoutPublisher forwards notifications to a RabbitMQ fanout exchange so
// other processes can relay them. The room becomes the routing key.
type FanoutPublisher struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

func NewFanoutPublisher(url string) (*FanoutPublisher, error) {
	p := &FanoutPublisher{url: url}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FanoutPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		NotificationsExchange, // name
		"fanout",              // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", NotificationsExchange, err)
	}
	p.conn = conn
	p.channel = ch
	return nil
}

func (p *FanoutPublisher) Publish(ctx context.Context, room, event string, payload interface{}) error {
	body, err := json.Marshal(hub.Message{Event: event, Room: room, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		NotificationsExchange,
		room,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
			Type:         event,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", event, NotificationsExchange, err)
	}
	utils.InfoLogger.WithField("room", room).Debugf("Published %s to %s", event, NotificationsExchange)
	return nil
}

func (p *FanoutPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
