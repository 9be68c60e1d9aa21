// Package metrics periodically snapshots a DataBus's statistics into
// ClickHouse, the same connection pattern the storage layer this module
// was adapted from uses for its log-entry tables. The bus itself keeps
// no durable state; this package is a read-only observer.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/OmarEhab007/busd/internal/bus"
)

// Exporter polls a DataBus on an interval and inserts one row per
// (topic, subscriber) into ClickHouse.
type Exporter struct {
	conn     driver.Conn
	databus  *bus.DataBus
	interval time.Duration
	logger   *slog.Logger
}

// NewExporter connects to the ClickHouse instance at dsn and returns an
// Exporter ready to Run.
func NewExporter(ctx context.Context, dsn string, databus *bus.DataBus, interval time.Duration, logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("metrics: open: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("metrics: ping: %w", err)
	}

	if err := conn.Exec(ctx, createStatsTableDDL); err != nil {
		return nil, fmt.Errorf("metrics: create table: %w", err)
	}

	return &Exporter{
		conn:     conn,
		databus:  databus,
		interval: interval,
		logger:   logger.With("component", "metrics-exporter"),
	}, nil
}

const createStatsTableDDL = `
CREATE TABLE IF NOT EXISTS bus_subscriber_stats (
	sampled_at            DateTime64(3),
	topic                 String,
	subscriber_name       String,
	subscriber_id         UInt64,
	queue_size            Int32,
	max_queue_size        Int32,
	incoming_count        UInt64,
	success_count         UInt64,
	dropped_count         UInt64,
	last_callback_seconds Float64,
	publish_count         UInt64
) ENGINE = MergeTree()
ORDER BY (topic, subscriber_name, sampled_at)
TTL sampled_at + INTERVAL 30 DAY
`

// Close releases the underlying connection.
func (e *Exporter) Close() error {
	return e.conn.Close()
}

// Run samples stats on every tick until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.sampleOnce(ctx); err != nil {
				e.logger.Error("failed to export stats", "error", err)
			}
		}
	}
}

func (e *Exporter) sampleOnce(ctx context.Context) error {
	stats := e.databus.Stats()
	if len(stats) == 0 {
		return nil
	}

	batch, err := e.conn.PrepareBatch(ctx, "INSERT INTO bus_subscriber_stats")
	if err != nil {
		return fmt.Errorf("metrics: prepare batch: %w", err)
	}

	now := time.Now()
	for _, topic := range stats {
		for _, sub := range topic.Subscribers {
			if err := batch.Append(
				now,
				topic.Topic,
				sub.SubscriberName,
				sub.SubscriberID,
				int32(sub.QueueSize),
				int32(sub.MaxQueueSize),
				sub.IncomingCount,
				sub.SuccessCount,
				sub.DroppedCount,
				sub.LastCallbackSeconds,
				topic.PublishCount,
			); err != nil {
				return fmt.Errorf("metrics: append row: %w", err)
			}
		}
	}

	return batch.Send()
}
