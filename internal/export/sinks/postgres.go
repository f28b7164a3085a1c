// Package sinks forwards exported records to downstream systems.
package sinks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/export"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

const connectTimeout = 5 * time.Second

// Postgres stores each record as a row with the full record in a JSONB
// column.
type Postgres struct {
	db    *sql.DB
	table string
}

// NewPostgres connects to dsn and creates table if it does not exist.
func NewPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	p, err := NewPostgresWithDB(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, p.createTableSQL()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return p, nil
}

// NewPostgresWithDB wraps an existing connection pool. The table is not
// created.
func NewPostgresWithDB(db *sql.DB, table string) (*Postgres, error) {
	if table == "" {
		return nil, errors.New("postgres table is empty")
	}
	return &Postgres{db: db, table: pgx.Identifier{table}.Sanitize()}, nil
}

// Name implements export.Sink.
func (p *Postgres) Name() string { return "postgres" }

// Publish inserts the record. A record whose id is already stored is
// ignored.
func (p *Postgres) Publish(ctx context.Context, rec export.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = p.db.ExecContext(ctx, p.insertSQL(),
		rec.ID, rec.CapturedAt, len(rec.Lines), rec.MeanConfidence, payload)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) createTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + p.table + ` (
	id              TEXT PRIMARY KEY,
	captured_at     TIMESTAMPTZ NOT NULL,
	line_count      INTEGER NOT NULL,
	mean_confidence DOUBLE PRECISION NOT NULL,
	record          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

func (p *Postgres) insertSQL() string {
	return `INSERT INTO ` + p.table + ` (id, captured_at, line_count, mean_confidence, record)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`
}
