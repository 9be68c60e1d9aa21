//go:build integration

package audit

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postgresDSN() string {
	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/busd?sslmode=disable"
	}
	return dsn
}

func TestLogRecordAndHistory(t *testing.T) {
	ctx := context.Background()
	log, err := NewLog(ctx, postgresDSN())
	require.NoError(t, err, "failed to connect to Postgres")
	t.Cleanup(log.Close)

	require.NoError(t, log.Record(ctx, Event{Kind: EventSubscribe, Topic: "t", SubscriberName: "s1", RemoteAddr: "127.0.0.1:1"}))
	require.NoError(t, log.Record(ctx, Event{Kind: EventUnsubscribe, Topic: "t", SubscriberName: "s1", RemoteAddr: "127.0.0.1:1"}))

	events, err := log.History(ctx, "t", "s1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventUnsubscribe, events[0].Kind)
	assert.Equal(t, EventSubscribe, events[1].Kind)
}
