package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/domain"
)

// BatchRunner is the part of Processor the scheduler drives.
type BatchRunner interface {
	Run(ctx context.Context, id auth.Identity) (domain.ProcessResult, error)
}

// Refresher reloads the interest index; satisfied by *cache.InterestCache.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

type SchedulerConfig struct {
	ProcessInterval      time.Duration
	CacheRefreshInterval time.Duration
}

// Scheduler invokes the processor on a fixed interval and periodically
// rebuilds the interest cache so it converges with the store.
type Scheduler struct {
	cron      *cron.Cron
	runner    BatchRunner
	refresher Refresher
	cfg       SchedulerConfig
	logger    *zap.Logger

	// ctx is handed to jobs; Stop cancels it so a pacing wait that is not
	// yet inside a claimed batch does not hold shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(runner BatchRunner, refresher Refresher, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		runner:    runner,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the jobs and starts the cron loop. It does not block.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(every(s.cfg.ProcessInterval), s.processJob); err != nil {
		return fmt.Errorf("schedule queue processing: %w", err)
	}
	if s.refresher != nil && s.cfg.CacheRefreshInterval > 0 {
		if _, err := s.cron.AddFunc(every(s.cfg.CacheRefreshInterval), s.refreshJob); err != nil {
			return fmt.Errorf("schedule cache refresh: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Duration("process_interval", s.cfg.ProcessInterval),
		zap.Duration("cache_refresh_interval", s.cfg.CacheRefreshInterval),
	)
	return nil
}

// Stop prevents further invocations and waits for a running job to finish,
// or for ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) processJob() {
	_, err := s.runner.Run(s.ctx, auth.SystemIdentity)
	switch {
	case err == nil, errors.Is(err, domain.ErrProcessorBusy):
	default:
		s.logger.Error("scheduled queue processing failed", zap.Error(err))
	}
}

func (s *Scheduler) refreshJob() {
	if err := s.refresher.RefreshAll(s.ctx); err != nil {
		s.logger.Warn("scheduled interest cache refresh failed", zap.Error(err))
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, zap.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, zap.Error(err), zap.Any("details", keysAndValues))
}
