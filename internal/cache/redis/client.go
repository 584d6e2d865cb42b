package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/metrics"
	"github.com/movie-recommender/backend/pkg/logger"
)

const popularPrefix = "popular:"

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func popularKey(limit int) string {
	return fmt.Sprintf("%s%d", popularPrefix, limit)
}

// SetPopular caches the popular-movie fallback list for a given limit.
func (c *Client) SetPopular(ctx context.Context, limit int, movieIDs []int, ttl time.Duration) error {
	data, err := json.Marshal(movieIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal popular movies: %w", err)
	}

	if err := c.client.Set(ctx, popularKey(limit), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set popular cache: %w", err)
	}

	logger.Debug("Popular movies cached", zap.Int("limit", limit), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetPopular(ctx context.Context, limit int) ([]int, bool, error) {
	data, err := c.client.Get(ctx, popularKey(limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("popular").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get popular cache: %w", err)
	}

	var movieIDs []int
	if err := json.Unmarshal(data, &movieIDs); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal popular movies: %w", err)
	}

	metrics.CacheHits.WithLabelValues("popular").Inc()
	logger.Debug("Popular cache hit", zap.Int("limit", limit))
	return movieIDs, true, nil
}

// InvalidatePopular drops every cached popular list. Called after the catalog
// changes.
func (c *Client) InvalidatePopular(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, popularPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Popular movie cache invalidated")
	return nil
}

func (c *Client) IncrementMetric(ctx context.Context, metricName string) error {
	return c.client.Incr(ctx, fmt.Sprintf("metric:%s", metricName)).Err()
}

func (c *Client) GetMetric(ctx context.Context, metricName string) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("metric:%s", metricName)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}
