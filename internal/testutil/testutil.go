// Package testutil provides shared test helpers for setting up granted
// directories, browser storage and timing.
package testutil

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/plansync/internal/localstorage"
	"github.com/starford/plansync/internal/storage"
)

// TestBrowser creates a temporary browser-storage database that is
// automatically cleaned up. quota <= 0 uses the default.
func TestBrowser(t *testing.T, quota int64) *localstorage.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "plansync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := localstorage.Open(dbFile.Name(), quota)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDirectory creates a temporary granted directory.
func TestDirectory(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Clock is a manual clock. Each Now call advances it by Step.
type Clock struct {
	mu   sync.Mutex
	t    time.Time
	Step time.Duration
}

// NewClock returns a clock at 2024-03-01 09:00 UTC advancing step per read.
func NewClock(step time.Duration) *Clock {
	return &Clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Step: step}
}

// Now returns the current time and then advances it.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.Step)
	return now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Eventually polls fn every tick until it returns true, failing the test
// with msg once timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
