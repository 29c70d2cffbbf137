// Package schedule runs the current-quarter sync on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/notify"
	"github.com/ellenzeng3/lda-filing-bot/internal/pipeline"
)

// Starter launches background syncs.
type Starter interface {
	Start(req pipeline.Request, onDone func(*pipeline.Task)) *pipeline.Task
}

// Scheduler triggers a sync of the quarter currently being filed and notifies its new relevant filings.
type Scheduler struct {
	cron     *cron.Cron
	runner   Starter
	notifier notify.Notifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now when choosing the period.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New parses spec in the named time zone. A nil notifier disables notification.
func New(spec, timezone string, runner Starter, notifier notify.Notifier, opts ...Option) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone %q: %w", timezone, err)
	}
	s := &Scheduler{
		runner:   runner,
		notifier: notifier,
		logger:   logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	clog := cronLogger{s.logger.WithField("component", "scheduler")}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and returns a context that is done once a tick in progress has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Tick runs one scheduled sync and blocks until it and its notification complete.
func (s *Scheduler) Tick(ctx context.Context) (pipeline.Report, error) {
	period, year := domain.CurrentPeriod(s.now())
	req := pipeline.Request{Period: period, Year: year}
	log := s.logger.WithFields(logrus.Fields{"period": period, "year": year})

	task := s.runner.Start(req, nil)
	report, err := task.Wait(ctx)
	if err != nil {
		log.WithError(err).Warn("scheduled sync failed")
		return report, err
	}
	log.WithFields(logrus.Fields{"run_id": report.RunID, "new_records": report.NewRecords, "new_relevant": len(report.NewRelevant)}).
		Info("scheduled sync finished")

	if s.notifier != nil {
		if nerr := s.notifier.Notify(ctx, report.NewRelevant); nerr != nil {
			log.WithError(nerr).Warn("notification failed")
		}
	}
	return report, nil
}

// cronLogger routes cron's logr-style calls to logrus.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
