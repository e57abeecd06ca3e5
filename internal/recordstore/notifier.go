package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel used for change notifications.
const DefaultChannel = "jobtrack:changes"

// Notifier fans out "owner changed" signals to other server processes that
// share the same database. The local process is always notified directly.
type Notifier interface {
	Publish(ctx context.Context, owner string) error
	// Listen blocks until ctx is done, calling deliver for every owner changed
	// by another process.
	Listen(ctx context.Context, deliver func(owner string)) error
}

// LocalNotifier is used when a single process owns the database.
type LocalNotifier struct{}

func (LocalNotifier) Publish(context.Context, string) error { return nil }

func (LocalNotifier) Listen(ctx context.Context, _ func(string)) error {
	<-ctx.Done()
	return nil
}

// RedisNotifier publishes change signals on a Redis channel. Messages carry
// the publishing instance id so a process ignores its own echoes.
type RedisNotifier struct {
	client   *redis.Client
	channel  string
	instance string
}

// NewRedisNotifier connects to the Redis server at addr.
func NewRedisNotifier(addr, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		channel:  channel,
		instance: uuid.New().String(),
	}
}

// Ping checks the connection, used at startup to fail fast.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Publish(ctx context.Context, owner string) error {
	if err := n.client.Publish(ctx, n.channel, n.instance+"|"+owner).Err(); err != nil {
		return fmt.Errorf("publishing change for %s: %w", owner, err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, deliver func(owner string)) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so no publish is missed after
	// Listen reports ready.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to %s: %w", n.channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			instance, owner, found := strings.Cut(msg.Payload, "|")
			if !found || owner == "" {
				slog.Warn("ignoring malformed change notification", "payload", msg.Payload)
				continue
			}
			if instance == n.instance {
				continue
			}
			deliver(owner)
		}
	}
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
