package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg.Now = clk.Now
	return New(cfg), clk
}

func TestCanProceedAfterInterval(t *testing.T) {
	l, clk := newLimiter(t, Config{MinInterval: time.Second})
	require.True(t, l.CanProceed())

	l.RecordCall()
	require.False(t, l.CanProceed(), "must be gated right after a call")

	clk.Advance(999 * time.Millisecond)
	require.False(t, l.CanProceed())

	clk.Advance(time.Millisecond)
	require.True(t, l.CanProceed())
}

func TestCeilingAndWindowRoll(t *testing.T) {
	l, clk := newLimiter(t, Config{Ceiling: 3, MinInterval: time.Millisecond})
	for range 3 {
		require.True(t, l.CanProceed())
		l.RecordCall()
		clk.Advance(time.Second)
	}
	require.False(t, l.CanProceed(), "ceiling reached")
	require.Equal(t, 3, l.Cursor().CallsInWindow)

	clk.Advance(Window)
	require.True(t, l.CanProceed(), "window rolled over")
	require.Equal(t, 0, l.Cursor().CallsInWindow)
}

func TestOnRateLimitedDoublesAndCaps(t *testing.T) {
	l, _ := newLimiter(t, Config{MinInterval: time.Second})
	l.OnRateLimited()
	l.OnRateLimited()
	require.Equal(t, 4*time.Second, l.Cursor().MinInterval)

	for range 10 {
		l.OnRateLimited()
	}
	require.Equal(t, DefaultMaxInterval, l.Cursor().MinInterval)
	l.OnRateLimited()
	require.Equal(t, DefaultMaxInterval, l.Cursor().MinInterval)
}

func TestBackoffDoesNotDecay(t *testing.T) {
	l, clk := newLimiter(t, Config{MinInterval: time.Second})
	l.OnRateLimited()
	for range 5 {
		clk.Advance(time.Hour)
		l.RecordCall()
	}
	require.Equal(t, 2*time.Second, l.Cursor().MinInterval)
}

func TestCursorIsCopy(t *testing.T) {
	l, _ := newLimiter(t, Config{})
	c := l.Cursor()
	c.CallsInWindow = 99
	require.Equal(t, 0, l.Cursor().CallsInWindow)
}
