// Package ratelimit gates outbound remote calls with a minimum interval and
// an hourly quota. It performs no I/O.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults.
const (
	DefaultCeiling     = 4000
	DefaultMinInterval = time.Second
	DefaultMaxInterval = 60 * time.Second
	Window             = time.Hour
)

// Cursor is the limiter state. It lives only in memory and resets at
// process start.
type Cursor struct {
	LastCallAt      time.Time     `json:"lastCallAt"`
	CallsInWindow   int           `json:"callsInWindow"`
	WindowStartedAt time.Time     `json:"windowStartedAt"`
	MinInterval     time.Duration `json:"minInterval"`
}

// Config tunes a Limiter. Zero fields take the defaults.
type Config struct {
	Ceiling     int
	MinInterval time.Duration
	MaxInterval time.Duration
	Now         func() time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	cur     Cursor
	ceiling int
	max     time.Duration
	now     func() time.Time
}

// New returns a Limiter whose window starts now.
func New(cfg Config) *Limiter {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		cur: Cursor{
			WindowStartedAt: cfg.Now(),
			MinInterval:     min(cfg.MinInterval, cfg.MaxInterval),
		},
		ceiling: cfg.Ceiling,
		max:     cfg.MaxInterval,
		now:     cfg.Now,
	}
}

// CanProceed reports whether a remote call may be made now.
func (l *Limiter) CanProceed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.roll(now)
	if !l.cur.LastCallAt.IsZero() && now.Sub(l.cur.LastCallAt) < l.cur.MinInterval {
		return false
	}
	return l.cur.CallsInWindow < l.ceiling
}

// RecordCall marks a remote call as made.
func (l *Limiter) RecordCall() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.roll(now)
	l.cur.LastCallAt = now
	l.cur.CallsInWindow++
}

// OnRateLimited doubles the minimum interval up to the cap. The interval
// never shrinks again within a process.
func (l *Limiter) OnRateLimited() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur.MinInterval = min(l.cur.MinInterval*2, l.max)
	return l.cur.MinInterval
}

// Cursor returns a copy of the current state.
func (l *Limiter) Cursor() Cursor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

func (l *Limiter) roll(now time.Time) {
	if now.Sub(l.cur.WindowStartedAt) >= Window {
		l.cur.WindowStartedAt = now
		l.cur.CallsInWindow = 0
	}
}
