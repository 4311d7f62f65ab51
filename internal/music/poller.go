package music

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts   = 60
	DefaultPollInterval  = 10 * time.Second
	defaultProgressEvery = 30 * time.Second
)

// StatusSource answers a single status query for a task.
type StatusSource interface {
	PollOnce(ctx context.Context, taskID string) Snapshot
}

// PollerConfig bounds the polling loop. MaxAttempts × Interval is the
// longest a caller can wait.
type PollerConfig struct {
	MaxAttempts   int
	Interval      time.Duration
	ProgressEvery time.Duration
}

// Budget is the wall-clock wait bound implied by the configuration.
func (c PollerConfig) Budget() time.Duration {
	return time.Duration(c.MaxAttempts) * c.Interval
}

// Poller drives a submitted task to a terminal status.
type Poller struct {
	source StatusSource
	config PollerConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPoller creates a poller over source.
func NewPoller(source StatusSource, config PollerConfig, logger *slog.Logger) *Poller {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}

	if config.ProgressEvery <= 0 {
		config.ProgressEvery = defaultProgressEvery
	}

	return &Poller{
		source: source,
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Drive polls taskID until it reaches a terminal status or MaxAttempts polls
// have been made. The first poll happens immediately, then one Interval passes
// before each following poll. Cancelling ctx ends the loop with StatusError.
func (p *Poller) Drive(ctx context.Context, taskID string) Outcome {
	job := NewJob(taskID)
	start := time.Now()
	nextProgress := p.config.ProgressEvery

	p.logger.Info("Polling generation task",
		slog.String("task_id", taskID),
		slog.Int("max_attempts", p.config.MaxAttempts),
		slog.Duration("interval", p.config.Interval),
	)

	attempts := 0
	for attempts < p.config.MaxAttempts {
		if attempts > 0 {
			if err := p.sleep(ctx, p.config.Interval); err != nil {
				job.finish(StatusError, fmt.Sprintf("polling cancelled: %v", err))
				return p.done(job, attempts, start)
			}
		}

		attempts++
		snap := p.source.PollOnce(ctx, taskID)
		previous := job.Status
		job.Apply(snap)

		p.logger.Debug("Polled generation task",
			slog.String("task_id", taskID),
			slog.Int("attempt", attempts),
			slog.String("status", string(snap.Status)),
			slog.String("remote_status", snap.RemoteStatus),
		)

		if job.Status != previous {
			p.logger.Info("Generation task status changed",
				slog.String("task_id", taskID),
				slog.String("from", string(previous)),
				slog.String("to", string(job.Status)),
				slog.String("message", snap.Message),
			)
		}

		if job.Status.IsTerminal() {
			return p.done(job, attempts, start)
		}

		if waited := time.Duration(attempts) * p.config.Interval; waited >= nextProgress {
			p.logger.Info("Still waiting for music generation",
				slog.String("task_id", taskID),
				slog.Duration("elapsed", time.Since(start)),
				slog.Duration("budget", p.config.Budget()),
			)
			nextProgress += p.config.ProgressEvery
		}
	}

	job.finish(StatusTimedOut, fmt.Sprintf("polling timed out after %s (%d attempts every %s); the task took too long",
		p.config.Budget(), p.config.MaxAttempts, p.config.Interval))
	return p.done(job, attempts, start)
}

func (p *Poller) done(job *Job, attempts int, start time.Time) Outcome {
	out := Outcome{Job: *job, Attempts: attempts, Elapsed: time.Since(start)}

	level := slog.LevelInfo
	if out.Status != StatusCompleted {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, "Generation task finished polling",
		slog.String("task_id", out.ID),
		slog.String("status", string(out.Status)),
		slog.Int("attempts", attempts),
		slog.Int("audio_urls", len(out.ResultURLs)),
		slog.String("error_detail", out.ErrorDetail),
	)
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
