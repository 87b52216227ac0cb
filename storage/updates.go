package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Update announces that a user's dashboard changed.
type Update struct {
	UserID string `json:"userId"`
	Source string `json:"source"`
	At     int64  `json:"at"`
}

// Publisher broadcasts updates on a Redis channel.
type Publisher struct {
	redis   *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{redis: client, channel: channel}
}

// Publish is a no-op without a Redis client.
func (p *Publisher) Publish(ctx context.Context, u Update) error {
	if p == nil || p.redis == nil {
		return nil
	}
	data, err := sonic.MarshalString(u)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}

// SubscribeUpdates calls notify for every update published on channel until
// ctx ends, resubscribing when the connection drops.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, notify func(Update)) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var u Update
				if err := sonic.UnmarshalString(msg.Payload, &u); err != nil || u.UserID == "" {
					logger.WithField("payload", msg.Payload).Warn("updates.parse_failed")
					continue
				}
				notify(u)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("updates.subscription_closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
