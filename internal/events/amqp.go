package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultExchange = "fleetroute.events"

var errNotConnected = errors.New("amqp: not connected")

// AMQP publishes events to a durable topic exchange, routing by event type.
// A lost connection is re-established in the background; publishes made
// while disconnected fail fast.
type AMQP struct {
	url      string
	exchange string
	log      *slog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	connClose chan *amqp.Error
	isClosed  atomic.Bool
}

func NewAMQP(url, exchange string, log *slog.Logger) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	a := &AMQP{url: url, exchange: exchange, log: log}
	if err := a.connect(); err != nil {
		return nil, err
	}
	go a.reconnect()
	return a, nil
}

func (a *AMQP) connect() error {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "open amqp channel")
	}
	err = ch.ExchangeDeclare(
		a.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "declare exchange")
	}
	closeCh := make(chan *amqp.Error, 1)
	conn.NotifyClose(closeCh)

	a.mu.Lock()
	a.conn, a.ch, a.connClose = conn, ch, closeCh
	a.mu.Unlock()
	return nil
}

func (a *AMQP) reconnect() {
	for {
		a.mu.Lock()
		closeCh := a.connClose
		a.mu.Unlock()
		<-closeCh
		if a.isClosed.Load() {
			return
		}
		a.log.Warn("amqp connection lost")
		a.mu.Lock()
		a.ch = nil
		a.mu.Unlock()
		for {
			if a.isClosed.Load() {
				return
			}
			if err := a.connect(); err != nil {
				a.log.Info("amqp reconnect failed", "error", err)
				time.Sleep(3 * time.Second)
				continue
			}
			a.log.Info("amqp reconnected")
			break
		}
	}
}

// Publish sends evt with its type as routing key.
func (a *AMQP) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	a.mu.Lock()
	ch := a.ch
	a.mu.Unlock()
	if ch == nil {
		return errNotConnected
	}
	err = ch.PublishWithContext(ctx, a.exchange, evt.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.TS,
		Headers:      amqp.Table{"tenantId": evt.TenantID},
		Body:         body,
	})
	return errors.Wrap(err, "amqp publish")
}

func (a *AMQP) Close() error {
	a.isClosed.Store(true)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
