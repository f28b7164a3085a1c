package sinks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/labelocr/internal/export"
)

// Config selects the sinks to open. Empty connection strings disable a
// sink.
type Config struct {
	PostgresDSN   string
	PostgresTable string
	RedisURL      string
	RedisChannel  string
}

// Open connects every configured sink. On failure the sinks opened so far
// are closed.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) ([]export.Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []export.Sink
	fail := func(err error) ([]export.Sink, error) {
		for _, s := range out {
			err = errors.Join(err, s.Close())
		}
		return nil, err
	}

	if cfg.PostgresDSN != "" {
		pg, err := NewPostgres(ctx, cfg.PostgresDSN, cfg.PostgresTable)
		if err != nil {
			return fail(err)
		}
		logger.Info("Postgres sink connected", "table", cfg.PostgresTable)
		out = append(out, pg)
	}
	if cfg.RedisURL != "" {
		rd, err := NewRedis(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return fail(err)
		}
		logger.Info("Redis sink connected", "channel", cfg.RedisChannel)
		out = append(out, rd)
	}
	return out, nil
}
