package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/vultiwallet/internal/types"
)

const DefaultChannel = "notifications"

// Redis publishes notifications on a pub/sub channel so every server
// instance, and whatever pushes them to clients, sees them.
type Redis struct {
	client   redis.UniversalClient
	channel  string
	logger   *logrus.Logger
	handlers handlers

	once   sync.Once
	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedis(client redis.UniversalClient, channel string, logger *logrus.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		client:  client,
		channel: channel,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (r *Redis) Send(ctx context.Context, n *types.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("fail to marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("fail to publish notification: %w", err)
	}
	return nil
}

// OnMessage registers h and starts the subscription on first use.
func (r *Redis) OnMessage(h Handler) {
	r.handlers.add(h)
	r.once.Do(r.subscribe)
}

func (r *Redis) subscribe() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.sub = r.client.Subscribe(ctx, r.channel)
	if _, err := r.sub.Receive(ctx); err != nil {
		r.logger.WithError(err).Error("fail to subscribe to notifications")
	}
	go r.consume(r.sub.Channel())
}

func (r *Redis) consume(ch <-chan *redis.Message) {
	defer close(r.done)
	for msg := range ch {
		var n types.Notification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			r.logger.WithFields(logrus.Fields{
				"channel": msg.Channel,
			}).WithError(err).Warn("fail to decode notification")
			continue
		}
		r.handlers.dispatch(&n)
	}
}

func (r *Redis) Close() error {
	if r.sub == nil {
		return nil
	}
	r.cancel()
	err := r.sub.Close()
	<-r.done
	return err
}
