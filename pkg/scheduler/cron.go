package scheduler

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"tradebot/pkg/transport"
)

// CronScheduler adapts a robfig/cron scheduler to transport.Scheduler.
type CronScheduler struct {
	cron *cron.Cron
}

// CronFactory returns a transport.SchedulerFactory that builds cron
// schedulers in the provider's location.
func CronFactory(log *slog.Logger) transport.SchedulerFactory {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler.cron")

	return func(tz transport.TimeZoneProvider) (transport.Scheduler, error) {
		if tz == nil {
			return nil, errors.New("time zone provider is required")
		}

		location, err := tz()
		if err != nil {
			return nil, fmt.Errorf("resolve scheduler time zone: %w", err)
		}
		if location == nil {
			return nil, errors.New("resolve scheduler time zone: no location")
		}

		return &CronScheduler{
			cron: cron.New(
				cron.WithLocation(location),
				cron.WithLogger(cronLogger{log: log}),
			),
		}, nil
	}
}

// AddFunc schedules fn on a standard five-field cron spec.
func (s *CronScheduler) AddFunc(spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, fn)
	return err
}

// Location returns the zone run times are computed in.
func (s *CronScheduler) Location() string {
	return s.cron.Location().String()
}

func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to return.
func (s *CronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// NoopScheduler satisfies transport.Scheduler without scheduling anything.
type NoopScheduler struct{}

func (NoopScheduler) Start() {}

func (NoopScheduler) Stop() {}

// cronLogger routes cron's logr-style logging into slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
