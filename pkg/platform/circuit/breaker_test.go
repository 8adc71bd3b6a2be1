package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock {
	return &clock{now: time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)}
}

func relay(c *clock, opts ...Option) *Breaker {
	return New("smtp", append(opts, WithClock(c.Now))...)
}

func TestNew_Defaults(t *testing.T) {
	b := New("smtp")
	assert.Equal(t, "smtp", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.True(t, b.Allow())
}

func TestRecordFailure(t *testing.T) {
	tests := []struct {
		name         string
		threshold    int
		failures     int
		wantOpen     bool
		wantLastFlip bool
	}{
		{name: "below threshold stays closed", threshold: 3, failures: 2},
		{name: "reaching threshold opens", threshold: 3, failures: 3, wantOpen: true, wantLastFlip: true},
		{name: "failing while open reports no new transition", threshold: 1, failures: 2, wantOpen: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("smtp", WithFailureThreshold(tt.threshold))
			var (
				useFallback bool
				change      StateChange
			)
			for i := 0; i < tt.failures; i++ {
				useFallback, change = b.RecordFailure()
			}
			assert.Equal(t, tt.wantOpen, b.IsOpen())
			assert.Equal(t, tt.wantOpen, useFallback)
			assert.Equal(t, tt.wantLastFlip, change.Opened)
		})
	}
}

func TestRecordSuccess_ResetsConsecutiveFailures(t *testing.T) {
	b := New("smtp", WithFailureThreshold(2))

	b.RecordFailure()
	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.False(t, change.Closed, "closing a closed breaker is not a transition")

	b.RecordFailure()
	assert.False(t, b.IsOpen(), "failures must be consecutive")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestRecordSuccess_NeedsConsecutiveProbesToClose(t *testing.T) {
	b := New("smtp", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	usePrimary, _ := b.RecordSuccess()
	assert.False(t, usePrimary)

	b.RecordFailure()
	usePrimary, _ = b.RecordSuccess()
	assert.False(t, usePrimary, "a failure restarts the success count")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestAllow_AdmitsProbeAfterCooldown(t *testing.T) {
	c := newClock()
	b := relay(c, WithFailureThreshold(1), WithCooldown(time.Minute))

	b.RecordFailure()
	assert.Equal(t, "open", b.State().String())
	assert.False(t, b.Allow())

	c.Advance(59 * time.Second)
	assert.False(t, b.Allow())

	c.Advance(time.Second)
	assert.True(t, b.Allow())

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
}

func TestAllow_FailedProbeRestartsCooldown(t *testing.T) {
	c := newClock()
	b := relay(c, WithFailureThreshold(1), WithCooldown(time.Minute))

	b.RecordFailure()
	c.Advance(time.Minute)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.False(t, b.Allow())
	c.Advance(time.Minute)
	assert.True(t, b.Allow())
}

func TestAllow_AdmitsOneProbeAtATime(t *testing.T) {
	c := newClock()
	b := relay(c, WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Minute))

	b.RecordFailure()
	c.Advance(time.Minute)

	require.True(t, b.Allow())
	for i := 0; i < 3; i++ {
		assert.False(t, b.Allow(), "other workers wait for the probe")
	}

	usePrimary, _ := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.True(t, b.Allow(), "the next probe is admitted once the first is recorded")
	assert.False(t, b.Allow())

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestAllow_UnrecordedProbeExpires(t *testing.T) {
	c := newClock()
	b := relay(c, WithFailureThreshold(1), WithCooldown(time.Minute))

	b.RecordFailure()
	c.Advance(time.Minute)
	require.True(t, b.Allow())

	c.Advance(59 * time.Second)
	assert.False(t, b.Allow())
	c.Advance(time.Second)
	assert.True(t, b.Allow())
}

func TestReset(t *testing.T) {
	b := New("smtp", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestOptions_IgnoreNonPositive(t *testing.T) {
	b := New("smtp", WithFailureThreshold(0), WithSuccessThreshold(-1), WithCooldown(0))
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "default threshold of five applies")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}
