package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"clipboard-service/internal/database"

	"github.com/redis/go-redis/v9"
)

const topicChannelPrefix = "clipboard:topic:"

// RedisService backs the presence registry with a shared store so viewer
// counts stay correct when a load balancer spreads clients across instances,
// and carries the cross-instance broadcast channel.
type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{
		client: client,
	}
}

// =============================================================================
// Shared presence mirror
// =============================================================================

func viewerSetKey(topicID string) string {
	return fmt.Sprintf("topic:%s:viewers", topicID)
}

func (r *RedisService) AddTopicViewer(ctx context.Context, topicID, connID string) error {
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, viewerSetKey(topicID), connID)
	// Safety net: a crashed instance can never clean up its members, so the
	// whole set ages out and gets rebuilt by live traffic.
	pipe.Expire(ctx, viewerSetKey(topicID), 24*time.Hour)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}

	slog.Debug("Viewer added to presence mirror", "topicID", topicID, "connID", connID)
	return nil
}

func (r *RedisService) RemoveTopicViewer(ctx context.Context, topicID, connID string) error {
	err := r.client.GetClient().SRem(ctx, viewerSetKey(topicID), connID).Err()
	if err != nil {
		return err
	}

	slog.Debug("Viewer removed from presence mirror", "topicID", topicID, "connID", connID)
	return nil
}

func (r *RedisService) TopicViewerCount(ctx context.Context, topicID string) (int64, error) {
	return r.client.GetClient().SCard(ctx, viewerSetKey(topicID)).Result()
}

func (r *RedisService) TopicViewers(ctx context.Context, topicID string) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, viewerSetKey(topicID)).Result()
}

// =============================================================================
// Cross-instance PubSub
// =============================================================================

func (r *RedisService) PublishTopicMessage(ctx context.Context, topicID string, envelope interface{}) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = r.client.GetClient().Publish(ctx, topicChannelPrefix+topicID, data).Err()
	if err != nil {
		return err
	}

	slog.Debug("Published topic message", "topicID", topicID)
	return nil
}

func (r *RedisService) SubscribeTopicMessages(ctx context.Context) *redis.PubSub {
	pubsub := r.client.GetClient().PSubscribe(ctx, topicChannelPrefix+"*")
	slog.Debug("Subscribed to topic messages", "pattern", topicChannelPrefix+"*")
	return pubsub
}

// =============================================================================
// Rate Limiting
// =============================================================================

func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).Unix()

	pipe := r.client.GetClient().Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	results, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	count := results[1].(*redis.IntCmd).Val()

	return count < int64(limit), nil
}
