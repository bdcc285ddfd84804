package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
)

// Redis implements Broker over Redis Pub/Sub so that every API replica sees
// every event.
type Redis struct {
	rdb *redis.Client
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

// NewRedis connects to url (redis://...) and verifies the connection.
func NewRedis(ctx context.Context, url string, log *slog.Logger) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return NewRedisClient(ctx, redis.NewClient(opt), log)
}

func NewRedisClient(ctx context.Context, rdb *redis.Client, log *slog.Logger) (*Redis, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return &Redis{rdb: rdb, log: log, subs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *Redis) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(topic))
	// wait for the subscription to be confirmed so no publish is lost
	if _, err := ps.Receive(ctx); err != nil {
		b.log.Warn("redis subscribe failed", "topic", topic, "error", err)
	}
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Warn("dropping undecodable event", "topic", topic, "error", err)
				continue
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying PubSub; the forwarding goroutine then
// closes ch.
func (b *Redis) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *Redis) Publish(topic string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Error("encode event", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.chanName(topic), data).Err(); err != nil {
		b.log.Warn("redis publish failed", "topic", topic, "error", err)
	}
}

func (b *Redis) Close() error { return b.rdb.Close() }

func (b *Redis) chanName(topic string) string { return "fleetroute:events:" + topic }
