package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenBlocks(t *testing.T) {
	bucket := newTokenBucket(3, 1)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bucket.Wait(ctx))
	}

	// bucket empty now: the next Wait must block past a short deadline
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := bucket.Wait(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	bucket := newTokenBucket(1, 50) // 50 tokens/sec

	ctx := context.Background()
	require.NoError(t, bucket.Wait(ctx))

	// ~20ms buys one token back
	waitCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	assert.NoError(t, bucket.Wait(waitCtx))
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	bucket := newTokenBucket(5, 1000)

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, bucket.Available(), 5.0)
}
