package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/plansync/internal/reconcile"
	"github.com/starford/plansync/internal/testutil"
)

type fakeEngine struct {
	mu     sync.Mutex
	cycles map[reconcile.Mode]int
	pulls  int
}

func (f *fakeEngine) Cycle(_ context.Context, mode reconcile.Mode) (reconcile.CycleReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cycles == nil {
		f.cycles = make(map[reconcile.Mode]int)
	}
	f.cycles[mode]++
	return reconcile.CycleReport{}, nil
}

func (f *fakeEngine) PullIfIdle(context.Context) (reconcile.PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	return reconcile.PullResult{Source: reconcile.SourceRemote}, nil
}

func (f *fakeEngine) counts() (light, deep, pulls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles[reconcile.ModeLight], f.cycles[reconcile.ModeDeep], f.pulls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchedulerRunsJobs(t *testing.T) {
	eng := &fakeEngine{}
	s, err := New(eng, Config{Light: "@every 1s", Deep: "* * * * * *", RemotePull: "@every 1s", Local: true}, testLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"light", "deep", "remote-pull"}, s.Jobs())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		light, deep, pulls := eng.counts()
		return light > 0 && deep > 0 && pulls > 0
	}, "expected every job to run")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerSkipsDeepWithoutDirectory(t *testing.T) {
	s, err := New(&fakeEngine{}, Config{Light: DefaultLight, Deep: DefaultDeep}, testLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"light"}, s.Jobs())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := New(&fakeEngine{}, Config{Light: "every now and then"}, testLogger())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(""))
	require.NoError(t, Validate(DefaultLight))
	require.NoError(t, Validate("*/10 * * * *"))
	require.NoError(t, Validate("0 */5 * * * *"))
	require.Error(t, Validate("61 * * * *"))
}
