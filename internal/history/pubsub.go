package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	channelAll         = "fills:all"
	channelOwnerPrefix = "fills:owner:"
	recentFillsKey     = "fills:recent"
	recentFillsMax     = 100
)

// RedisPublisher fans fills out over Redis pub/sub and keeps a short
// recent-fills list for the API.
type RedisPublisher struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisPublisher(client *redis.Client, logger *logrus.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisPublisher{client: client, logger: logger}, nil
}

func (p *RedisPublisher) PublishFill(ctx context.Context, fill *Fill) error {
	data, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("marshal fill: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, channelAll, data)
	pipe.Publish(ctx, channelOwnerPrefix+fill.Owner, data)
	pipe.LPush(ctx, recentFillsKey, data)
	pipe.LTrim(ctx, recentFillsKey, 0, recentFillsMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish fill: %w", err)
	}

	return nil
}

// RecentFills returns the latest published fills, newest first.
func (p *RedisPublisher) RecentFills(ctx context.Context, limit int64) ([]*Fill, error) {
	if limit <= 0 {
		limit = 50
	}

	raw, err := p.client.LRange(ctx, recentFillsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent fills: %w", err)
	}

	out := make([]*Fill, 0, len(raw))
	for _, r := range raw {
		var f Fill
		if err := json.Unmarshal([]byte(r), &f); err != nil {
			p.logger.WithError(err).Warn("skipping malformed fill record")
			continue
		}
		out = append(out, &f)
	}
	return out, nil
}

// SubscribeFills streams all fills until the context is cancelled.
func (p *RedisPublisher) SubscribeFills(ctx context.Context) (<-chan *Fill, error) {
	pubsub := p.client.Subscribe(ctx, channelAll)

	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe fills: %w", err)
	}

	out := make(chan *Fill)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var f Fill
				if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
					p.logger.WithError(err).Warn("skipping malformed fill message")
					continue
				}
				select {
				case out <- &f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
