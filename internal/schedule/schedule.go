// Package schedule runs a batch job periodically without overlapping runs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one batch. Errors are logged; they do not stop the schedule.
type Job func(ctx context.Context) error

// Every runs job once immediately and then every interval until ctx is done.
// A tick that arrives while the previous run is still going is skipped.
func Every(ctx context.Context, interval time.Duration, job Job) error {
	if interval < time.Second {
		return fmt.Errorf("interval %s below one second", interval)
	}
	logger := zerolog.Ctx(ctx)
	run := func() {
		if err := job(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduled run failed")
		}
	}

	run()
	if ctx.Err() != nil {
		return nil
	}

	cl := cronLogger{logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	if _, err := c.AddFunc("@every "+interval.String(), run); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	c.Start()
	logger.Info().Dur("interval", interval).Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("scheduler stopped")
	return nil
}

// cronLogger routes cron's logging into zerolog.
type cronLogger struct{ l *zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
