// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Thermoquad/bmsbridge/internal/config"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

// redisClient is the subset of *redis.Client used by Redis
type redisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis keeps the latest telemetry in Redis:
//
//	<prefix>:bms             hash of BMS-wide readings
//	<prefix>:pack:<n>        hash of readings for pack n
//	<prefix>:identity        hash of version and serial numbers
//	<prefix>:availability    online|offline, also published on the same channel
//	<prefix>:snapshot:<kind> latest encoded record, also published on <prefix>:records
type Redis struct {
	client   redisClient
	closer   func() error
	prefix   string
	encoding string
}

// NewRedis connects to Redis and checks the connection with PING
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	r := newRedis(rdb, cfg.Prefix, cfg.Encoding)
	r.closer = rdb.Close
	return r, nil
}

func newRedis(client redisClient, prefix, encoding string) *Redis {
	if prefix == "" {
		prefix = "bms"
	}
	if encoding == "" {
		encoding = pace.EncodingCBOR
	}
	return &Redis{client: client, prefix: prefix, encoding: encoding}
}

// Close closes the connection
func (r *Redis) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

func (r *Redis) key(parts ...string) string {
	k := r.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (r *Redis) readingKey(pack int) string {
	if pack <= 0 {
		return r.key("bms")
	}
	return r.key("pack", fmt.Sprint(pack))
}

// PublishReading implements TelemetrySink
func (r *Redis) PublishReading(ctx context.Context, rd pace.Reading) error {
	if err := r.client.HSet(ctx, r.readingKey(rd.Pack), rd.Key, rd.String()).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", rd.Key, err)
	}
	return nil
}

// PublishAvailability implements TelemetrySink
func (r *Redis) PublishAvailability(ctx context.Context, online bool) error {
	key := r.key("availability")
	text := AvailabilityText(online)
	if err := r.client.Set(ctx, key, text, 0).Err(); err != nil {
		return fmt.Errorf("redis set availability: %w", err)
	}
	if err := r.client.Publish(ctx, key, text).Err(); err != nil {
		return fmt.Errorf("redis publish availability: %w", err)
	}
	return nil
}

// PublishIdentity implements TelemetrySink
func (r *Redis) PublishIdentity(ctx context.Context, id pace.Identity) error {
	var fields []interface{}
	for _, rd := range id.Readings() {
		fields = append(fields, rd.Key, rd.Text)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, r.key("identity"), fields...).Err(); err != nil {
		return fmt.Errorf("redis hset identity: %w", err)
	}
	return nil
}

// PublishRecord implements RecordSink
func (r *Redis) PublishRecord(ctx context.Context, rec pace.Record, at time.Time) error {
	data, err := pace.EncodeSnapshot(rec, at, r.encoding)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key("snapshot", rec.Kind()), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, r.key("records"), data).Err(); err != nil {
		return fmt.Errorf("redis publish snapshot: %w", err)
	}
	return nil
}
