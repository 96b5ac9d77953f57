package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
)

// ErrSweepInProgress is returned when a sweep is requested while another is
// still running. Concurrent sweeps against the same store are not supported.
var ErrSweepInProgress = errors.New("monitor: sweep already in progress")

// ErrNotTracked is returned for snooze/handled operations on keys that never
// became breach candidates.
var ErrNotTracked = errors.New("monitor: message is not a tracked breach")

// Notifier delivers sweep reports to an ops sink (e.g. a Slack webhook).
type Notifier interface {
	Send(ctx context.Context, report *Report) error
}

// Digester produces an optional natural-language summary of open breaches.
type Digester interface {
	Digest(ctx context.Context, open []Breach, report *Report) (string, error)
}

// Service is the business boundary for sweep operations. It enforces the
// single-writer-per-run discipline the StateStore assumes, applies the run
// deadline, and guarantees accumulated mutations are flushed even when a
// sweep is cut short.
type Service struct {
	store    *StateStore
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
	digester Digester
	deadline time.Duration

	sweepMu sync.Mutex

	mu         sync.Mutex
	lastReport *Report
}

// NewService creates a sweep service. metrics, notifier, and digester may be
// nil; deadline <= 0 disables the per-run wall clock.
func NewService(store *StateStore, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier, digester Digester, deadline time.Duration) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		digester: digester,
		deadline: deadline,
	}
}

// Sweep runs one monitoring pass. It returns ErrSweepInProgress when another
// sweep holds the writer lock, and the flush error when persisting the run's
// mutations failed, the only failure fatal to a run.
func (s *Service) Sweep(ctx context.Context) (*Report, error) {
	if !s.sweepMu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	id := ulid.Make().String()
	L := s.logger.With("sweep_id", id)

	runCtx := ctx
	var cancel context.CancelFunc
	if s.deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	report := s.engine.Sweep(runCtx, s.store, time.Now().UTC())
	report.ID = id

	if report.DeadlineHit {
		L.Warn(ctx, "sweep hit run deadline, flushing partial progress",
			"channels_scanned", report.ChannelsScanned,
		)
	}

	// Partial progress is never discarded: flush outlives the run deadline.
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer flushCancel()

	flushErr := s.store.Flush(flushCtx)
	if flushErr != nil {
		L.Error(ctx, flushErr, "state flush failed")
		flushErr = fmt.Errorf("flush alert state: %w", flushErr)
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(report, flushErr == nil)
		s.metrics.SetOpenBreaches(s.store.Len())
	}

	s.finishReport(ctx, L, report)

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	L.Info(ctx, "sweep complete",
		"duration", report.Duration.Seconds(),
		"channels_scanned", report.ChannelsScanned,
		"channels_failed", report.ChannelsFailed,
		"messages_seen", report.MessagesSeen,
		"candidates", report.Candidates,
		"cleared", report.Cleared,
		"alerts_sent", report.AlertsSent,
		"suppressed", report.Suppressed,
		"dispatch_failed", report.DispatchFailed,
		"deadline_hit", report.DeadlineHit,
	)

	return report, flushErr
}

// finishReport attaches the optional digest and delivers the ops
// notification. Neither may fail the run.
func (s *Service) finishReport(ctx context.Context, L log.Logger, report *Report) {
	if s.digester != nil && report.AlertsSent > 0 {
		digest, err := s.digester.Digest(ctx, s.store.List(), report)
		if err != nil {
			L.Error(ctx, err, "breach digest failed, skipping")
		} else {
			report.Digest = digest
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, report); err != nil {
			L.Error(ctx, err, "sweep report notification failed")
		}
	}
}

// List returns all tracked breach records.
func (s *Service) List(_ context.Context) []Breach {
	return s.store.List()
}

// LastReport returns the most recent sweep report, if any.
func (s *Service) LastReport(_ context.Context) (*Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return nil, false
	}
	cp := *s.lastReport
	return &cp, true
}

// Snooze silences a tracked breach until the given time and persists
// immediately so operator actions survive a crash before the next sweep.
func (s *Service) Snooze(ctx context.Context, key Key, until time.Time) error {
	if !s.store.Snooze(key, until) {
		return ErrNotTracked
	}
	return s.store.Flush(ctx)
}

// MarkHandled permanently silences a tracked breach and persists immediately.
func (s *Service) MarkHandled(ctx context.Context, key Key) error {
	if !s.store.MarkHandled(key) {
		return ErrNotTracked
	}
	return s.store.Flush(ctx)
}

// Close flushes any mutations accumulated since the last sweep. Called during
// shutdown.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Flush(ctx)
}
