// Package jobs runs the periodic maintenance work inside the server process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/library"
)

// Sweeper is the maintenance pass run on a schedule. *library.Service implements it.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (library.SweepResult, error)
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.WithError(err).WithFields(fields(kv)).Error("cron: " + msg)
}

type Scheduler struct {
	cron    *cron.Cron
	log     logrus.FieldLogger
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler builds a UTC scheduler using the standard five-field parser
// plus descriptors such as "@every 1h". A run still in progress causes the
// next one to be skipped; panics are recovered and logged.
func NewScheduler(log logrus.FieldLogger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
}

// AddSweep runs sw on a cron schedule such as "@every 1h".
func (s *Scheduler) AddSweep(schedule string, sw Sweeper) error {
	if _, err := s.cron.AddFunc(schedule, s.sweepJob(sw)); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	s.log.WithField("schedule", schedule).Info("sweep scheduled")
	return nil
}

func (s *Scheduler) sweepJob(sw Sweeper) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := sw.Sweep(ctx, s.now().UTC()); err != nil {
			s.log.WithError(err).Error("scheduled sweep failed")
		}
	}
}

// Jobs is the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
