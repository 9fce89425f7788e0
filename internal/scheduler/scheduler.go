// Package scheduler runs the periodic reconciliation passes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/starford/plansync/internal/reconcile"
)

// Default schedules. Seconds are the first field.
const (
	DefaultLight = "@every 30s"
	DefaultDeep  = "@every 5m"
)

// Engine is the part of the reconciliation engine the scheduler drives.
type Engine interface {
	Cycle(ctx context.Context, mode reconcile.Mode) (reconcile.CycleReport, error)
	PullIfIdle(ctx context.Context) (reconcile.PullResult, error)
}

// Config holds cron specs. An empty spec disables that job.
type Config struct {
	Light      string
	Deep       string
	RemotePull string
	// Local reports whether a granted directory is configured. Without one
	// the light and deep jobs still push, but skip discovery.
	Local bool
}

// Scheduler owns a cron runner.
type Scheduler struct {
	cron   *cron.Cron
	eng    Engine
	logger *slog.Logger
	ctx    context.Context
	jobs   []string
}

// Parser accepts an optional seconds field and descriptors like @every.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec parses. Empty is valid.
func Validate(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := Parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	return nil
}

// New registers the configured jobs. Jobs of one kind never overlap: a tick
// that fires while the previous run is still going is skipped.
func New(eng Engine, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{eng: eng, logger: logger, ctx: context.Background()}
	s.cron = cron.New(
		cron.WithParser(Parser),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)

	add := func(name, spec string, fn func()) error {
		if spec == "" {
			return nil
		}
		if _, err := s.cron.AddFunc(spec, fn); err != nil {
			return fmt.Errorf("scheduler: add %s job %q: %w", name, spec, err)
		}
		s.jobs = append(s.jobs, name)
		return nil
	}

	if err := add("light", cfg.Light, func() { s.cycle(reconcile.ModeLight) }); err != nil {
		return nil, err
	}
	if cfg.Local {
		if err := add("deep", cfg.Deep, func() { s.cycle(reconcile.ModeDeep) }); err != nil {
			return nil, err
		}
	}
	if err := add("remote-pull", cfg.RemotePull, s.pull); err != nil {
		return nil, err
	}
	return s, nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string { return s.jobs }

// Run starts the jobs and blocks until ctx is done, then waits for running
// jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler: started", slog.Any("jobs", s.jobs))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler: stopped")
	return nil
}

func (s *Scheduler) cycle(mode reconcile.Mode) {
	rep, err := s.eng.Cycle(s.ctx, mode)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("scheduler: cycle failed", slog.String("mode", string(mode)), slog.String("error", err.Error()))
		}
		return
	}
	if rep.Discovery.Changed() {
		s.logger.Debug("scheduler: cycle applied changes", slog.String("mode", string(mode)))
	}
}

func (s *Scheduler) pull() {
	res, err := s.eng.PullIfIdle(s.ctx)
	if err != nil {
		s.logger.Warn("scheduler: remote pull failed", slog.String("error", err.Error()))
		return
	}
	if !res.Skipped {
		s.logger.Debug("scheduler: remote pull", slog.String("source", string(res.Source)))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("scheduler: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("scheduler: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
