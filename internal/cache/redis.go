package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/logger"
)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(host string, port int, password string, db int, ttl time.Duration) (*Redis, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis prediction cache initialized", zap.String("addr", addr))

	return &Redis{client: client, ttl: ttl}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get prediction cache: %w", err)
	}

	var probs []float32
	if err := json.Unmarshal(data, &probs); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal prediction: %w", err)
	}

	logger.Debug("Prediction cache hit", zap.String("key", key))
	return probs, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, probs []float32) error {
	data, err := json.Marshal(probs)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	if err := c.client.Set(ctx, redisKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set prediction cache: %w", err)
	}
	return nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func redisKey(key string) string {
	return "prediction:" + key
}
