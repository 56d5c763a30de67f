// Package scheduler keeps the served dataset fresh: one combine run at
// startup, then one every refresh interval, plus on-demand runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/giygas/patient-records/interfaces"
	"github.com/giygas/patient-records/logging"
)

var _ interfaces.Scheduler = (*Scheduler)(nil)

// ErrUpdateInProgress is returned by RunNow while another run is active.
var ErrUpdateInProgress = errors.New("a combine run is already in progress")

// Scheduler runs the combiner and stores its results in the data store.
type Scheduler struct {
	dataStore interfaces.DataStore
	combiner  interfaces.Combiner
	interval  time.Duration
	scheduler *gocron.Scheduler
	job       *gocron.Job

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler returns a scheduler re-running combiner every interval.
func NewScheduler(dataStore interfaces.DataStore, combiner interfaces.Combiner, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dataStore: dataStore,
		combiner:  combiner,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.Local),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start performs the initial run and schedules the periodic ones. A failed
// initial run is logged and recorded; the service starts without data and
// the next run retries.
func (s *Scheduler) Start() error {
	if err := s.update(s.ctx); err != nil {
		logging.Warn("Initial combine run failed", "error", err)
	}

	job, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		if err := s.update(s.ctx); err != nil && !errors.Is(err, ErrUpdateInProgress) {
			logging.Error("Scheduled combine run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule combine runs: %w", err)
	}
	s.job = job

	s.scheduler.StartAsync()
	logging.Info("Combine runs scheduled", "interval", s.interval.String())
	return nil
}

// Stop cancels a running combine and stops scheduling new ones.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// RunNow runs the combiner immediately.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.update(ctx)
}

// NextRun returns when the next scheduled run starts, zero before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

func (s *Scheduler) update(ctx context.Context) error {
	if !s.dataStore.BeginUpdate() {
		logging.Info("Combine run already in progress, skipping")
		return ErrUpdateInProgress
	}
	defer s.dataStore.EndUpdate()

	res, err := s.combiner.Combine(ctx)
	if err != nil {
		s.dataStore.RecordFailure(err)
		return err
	}

	s.dataStore.UpdateResult(res)
	if n := len(res.Summary.DuplicateIDs); n > 0 {
		logging.Warn("Duplicate patient ids detected", "count", n)
	}
	if n := len(res.Summary.Errors); n > 0 {
		logging.Warn("Record files skipped", "count", n)
	}
	return nil
}
