package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/plansync/internal/reconcile"
	"github.com/starford/plansync/internal/testutil"
)

type fakeDiscoverer struct {
	mu    sync.Mutex
	modes []reconcile.Mode
}

func (f *fakeDiscoverer) Discover(_ context.Context, mode reconcile.Mode) (reconcile.DiscoveryReport, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	return reconcile.DiscoveryReport{Mode: mode}, nil
}

func (f *fakeDiscoverer) calls() []reconcile.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reconcile.Mode(nil), f.modes...)
}

func (f *fakeDiscoverer) saw(mode reconcile.Mode) bool {
	for _, m := range f.calls() {
		if m == mode {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T) (string, *fakeDiscoverer) {
	t.Helper()
	dir := t.TempDir()
	d := &fakeDiscoverer{}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Watch(ctx, d, dir, 50*time.Millisecond, logger, nil)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return dir, d
}

func TestWatcher_NewFileRunsLightPass(t *testing.T) {
	dir, d := startWatcher(t)

	_ = os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0o644)

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return d.saw(reconcile.ModeLight)
	}, "new file did not trigger a light pass")
}

func TestWatcher_NewDirRunsDeepPass(t *testing.T) {
	dir, d := startWatcher(t)

	sub := filepath.Join(dir, "papers")
	_ = os.MkdirAll(sub, 0o755)

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return d.saw(reconcile.ModeDeep)
	}, "new directory did not trigger a deep pass")

	// Files inside the new directory are watched too.
	before := len(d.calls())
	_ = os.WriteFile(filepath.Join(sub, "a.pdf"), []byte("%PDF"), 0o644)
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(d.calls()) > before
	}, "file in new subdir did not trigger a pass")
}

func TestWatcher_BurstIsDebounced(t *testing.T) {
	dir, d := startWatcher(t)

	for i := range 20 {
		_ = os.WriteFile(filepath.Join(dir, "burst.txt"), []byte{byte(i)}, 0o644)
	}

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(d.calls()) > 0
	}, "burst did not trigger a pass")
	time.Sleep(200 * time.Millisecond)
	if n := len(d.calls()); n > 3 {
		t.Errorf("expected burst to coalesce, got %d passes", n)
	}
}

func TestWatcher_HiddenFilesIgnored(t *testing.T) {
	dir, d := startWatcher(t)

	_ = os.WriteFile(filepath.Join(dir, ".plansync-tmp-123"), []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := len(d.calls()); n != 0 {
		t.Errorf("expected no pass for hidden files, got %d", n)
	}
}

func TestHidden(t *testing.T) {
	cases := map[string]bool{
		"a.txt":          false,
		"papers/a.pdf":   false,
		".git/HEAD":      true,
		"x/.tmp-1":       true,
		".plansync-tmp-": true,
	}
	for in, want := range cases {
		if got := hidden(in); got != want {
			t.Errorf("hidden(%q) = %v, want %v", in, got, want)
		}
	}
}
