package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnconfiguredLimiterAllowsEverything(t *testing.T) {
	ctx := context.Background()

	l, err := New(ctx, "")
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 10; i++ {
		allowed, err := l.Allow(ctx, "t/s1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestConfigureWithoutClientStillAllows(t *testing.T) {
	ctx := context.Background()

	l, err := New(ctx, "")
	require.NoError(t, err)
	defer l.Close()

	l.Configure("t/s1", 1)

	allowed, err := l.Allow(ctx, "t/s1")
	require.NoError(t, err)
	assert.True(t, allowed)
}
