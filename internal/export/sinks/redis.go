package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/redis/go-redis/v9"
)

// Redis publishes each record as JSON on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis connects to the server at url (redis://host:port/db).
func NewRedis(ctx context.Context, url, channel string) (*Redis, error) {
	if channel == "" {
		return nil, errors.New("redis channel is empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, channel: channel}, nil
}

// Name implements export.Sink.
func (r *Redis) Name() string { return "redis" }

// Publish sends the record to the channel.
func (r *Redis) Publish(ctx context.Context, rec export.Record) error {
	payload, err := encodeMessage(rec)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }

func encodeMessage(rec export.Record) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return payload, nil
}
