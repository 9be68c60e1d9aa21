//go:build integration

package metrics

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/busd/internal/bus"
)

func clickhouseDSN() string {
	dsn := os.Getenv("CLICKHOUSE_URL")
	if dsn == "" {
		dsn = "clickhouse://localhost:9000/busd"
	}
	return dsn
}

func TestExporterSamplesSubscriberStats(t *testing.T) {
	ctx := context.Background()
	databus := bus.New(nil)

	_, err := databus.Subscribe("t", "s1", func(payload any) {}, 4)
	require.NoError(t, err)
	databus.Publish("t", "hello")

	exporter, err := NewExporter(ctx, clickhouseDSN(), databus, 50*time.Millisecond, nil)
	require.NoError(t, err, "failed to connect to ClickHouse")
	t.Cleanup(func() { _ = exporter.Close() })

	require.NoError(t, exporter.sampleOnce(ctx))
}
