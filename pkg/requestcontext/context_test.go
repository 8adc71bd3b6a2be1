package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow_FallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestWithTime_PinsNow(t *testing.T) {
	fixed := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestAccessors_ZeroValueWhenUnset(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, CycleID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, UserAgent(ctx))
}

func TestAccessors_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCycleID(ctx, "cycle-7")
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "cycle-7", CycleID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
}
