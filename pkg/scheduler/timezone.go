package scheduler

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"tradebot/pkg/transport"
)

const (
	envTZ               = "TZ"
	envSchedulerTZ      = "SCHEDULER_TIMEZONE"
	pinnedTimeZoneValue = "UTC"
)

var pinOnce sync.Once

// PinUTC forces the process time-zone signals to UTC and returns a provider
// that always yields time.UTC. The environment is written once per process;
// later calls only return the provider. It must run before the first client
// is constructed.
func PinUTC(log *slog.Logger) transport.TimeZoneProvider {
	pinOnce.Do(func() {
		for _, key := range []string{envTZ, envSchedulerTZ} {
			if err := os.Setenv(key, pinnedTimeZoneValue); err != nil && log != nil {
				log.Warn("Failed to pin time zone", "variable", key, "error", err)
			}
		}
		if log != nil {
			log.Debug("Scheduler time zone pinned", "tz", pinnedTimeZoneValue)
		}
	})

	return UTC
}

// UTC is a TimeZoneProvider that never fails.
func UTC() (*time.Location, error) {
	return time.UTC, nil
}
