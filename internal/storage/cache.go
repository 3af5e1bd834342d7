package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenMachineSensors/internal/config"
	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps the latest reading and a short history per sensor in
// redis and publishes every reading on a pub/sub channel. Values are CBOR
// payloads, the same encoding the sample table uses.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	channel string
	cfg     config.RedisConfig
}

var _ SampleStore = (*RedisCache)(nil)

func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}

	return newRedisCache(client, cfg), nil
}

func newRedisCache(client *redis.Client, cfg config.RedisConfig) *RedisCache {
	return &RedisCache{
		client:  client,
		prefix:  cfg.KeyPrefix,
		channel: cfg.Channel,
		cfg:     cfg,
	}
}

func (c *RedisCache) latestKey(sensorName string) string {
	return fmt.Sprintf("%s:sensor:%s:latest", c.prefix, sensorName)
}

func (c *RedisCache) historyKey(sensorName string) string {
	return fmt.Sprintf("%s:sensor:%s:history", c.prefix, sensorName)
}

// SaveSample stores r as the sensor's latest reading, prepends it to the
// history list and publishes it. All commands go out in one pipeline.
func (c *RedisCache) SaveSample(ctx context.Context, sensorName string, r devices.Reading) error {
	payload, err := EncodeReading(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.latestKey(sensorName), payload, c.cfg.TTL)
	if c.cfg.History > 0 {
		pipe.LPush(ctx, c.historyKey(sensorName), payload)
		pipe.LTrim(ctx, c.historyKey(sensorName), 0, c.cfg.History-1)
	}
	if c.channel != "" {
		pipe.Publish(ctx, c.channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache reading of %s: %w", sensorName, err)
	}
	return nil
}

// Latest returns the cached reading of a sensor. ErrNotFound is returned
// when none is cached or it expired.
func (c *RedisCache) Latest(ctx context.Context, sensorName string) (devices.Reading, error) {
	data, err := c.client.Get(ctx, c.latestKey(sensorName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return devices.Reading{}, ErrNotFound
	}
	if err != nil {
		return devices.Reading{}, fmt.Errorf("failed to read cache: %w", err)
	}
	return DecodeReading(data)
}

// History returns up to limit cached readings, newest first.
func (c *RedisCache) History(ctx context.Context, sensorName string, limit int64) ([]devices.Reading, error) {
	if limit <= 0 {
		return nil, nil
	}

	items, err := c.client.LRange(ctx, c.historyKey(sensorName), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	readings := make([]devices.Reading, 0, len(items))
	for _, item := range items {
		r, err := DecodeReading([]byte(item))
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// Forget removes everything cached for a sensor.
func (c *RedisCache) Forget(ctx context.Context, sensorName string) error {
	return c.client.Del(ctx, c.latestKey(sensorName), c.historyKey(sensorName)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
