// Package audit records every bridge subscribe/unsubscribe event to
// PostgreSQL, grounded on the connection-pool pattern the storage layer
// this module was adapted from uses for its relational tables. The bus
// itself persists nothing; this is a best-effort side log for operators.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventKind distinguishes subscribe from unsubscribe rows.
type EventKind string

const (
	EventSubscribe   EventKind = "subscribe"
	EventUnsubscribe EventKind = "unsubscribe"
)

// Event is one subscribe/unsubscribe occurrence.
type Event struct {
	ID             uuid.UUID
	Kind           EventKind
	Topic          string
	SubscriberName string
	RemoteAddr     string
	OccurredAt     time.Time
}

// Log wraps a pgx connection pool and appends bridge subscription
// events to a single append-only table.
type Log struct {
	pool *pgxpool.Pool
}

// NewLog creates a Log from a PostgreSQL DSN and ensures its backing
// table exists.
func NewLog(ctx context.Context, dsn string) (*Log, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}

	return &Log{pool: pool}, nil
}

const createTableDDL = `
CREATE TABLE IF NOT EXISTS bus_subscription_events (
	id              UUID PRIMARY KEY,
	kind            TEXT NOT NULL,
	topic           TEXT NOT NULL,
	subscriber_name TEXT NOT NULL,
	remote_addr     TEXT NOT NULL,
	occurred_at     TIMESTAMPTZ NOT NULL
)
`

// Close releases all connections in the pool.
func (l *Log) Close() {
	l.pool.Close()
}

// Record appends one event.
func (l *Log) Record(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO bus_subscription_events (id, kind, topic, subscriber_name, remote_addr, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, string(e.Kind), e.Topic, e.SubscriberName, e.RemoteAddr, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("audit: record event: %w", err)
	}
	return nil
}

// History returns every recorded event for (topic, subscriberName),
// newest first.
func (l *Log) History(ctx context.Context, topic, subscriberName string) ([]Event, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, kind, topic, subscriber_name, remote_addr, occurred_at
		FROM bus_subscription_events
		WHERE topic = $1 AND subscriber_name = $2
		ORDER BY occurred_at DESC
	`, topic, subscriberName)
	if err != nil {
		return nil, fmt.Errorf("audit: query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Topic, &e.SubscriberName, &e.RemoteAddr, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
