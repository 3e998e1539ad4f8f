// Package worker runs the background maintenance tasks of the service.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// Task is a named job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Config configures a ticker loop.
type Config struct {
	// Name identifies the loop for logging.
	Name string

	// Tasks without a positive interval are skipped.
	Tasks []Task

	Logger *zerolog.Logger
}

// Loop runs each task on its own ticker until ctx is canceled. Task
// errors and panics are logged and do not stop the loop.
func Loop(ctx context.Context, cfg Config) error {
	logger := getLogger(cfg.Logger)

	cases := make([]*time.Ticker, 0, len(cfg.Tasks))
	tasks := make([]Task, 0, len(cfg.Tasks))

	for _, task := range cfg.Tasks {
		if task.Interval <= 0 || task.Run == nil {
			logger.Debug().Str(logFieldWorker, cfg.Name).Str(logFieldTask, task.Name).Msg("task disabled")
			continue
		}

		cases = append(cases, time.NewTicker(task.Interval))
		tasks = append(tasks, task)
	}

	defer func() {
		for _, t := range cases {
			t.Stop()
		}

		logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")
	}()

	logger.Info().Str(logFieldWorker, cfg.Name).Int("tasks", len(tasks)).Msg("starting worker loop")

	fired := make(chan int)

	for i, t := range cases {
		go forward(ctx, t, i, fired)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("worker loop %s: %w", cfg.Name, ctx.Err())
		case i := <-fired:
			runTask(ctx, tasks[i], logger)
		}
	}
}

func forward(ctx context.Context, t *time.Ticker, i int, out chan<- int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			select {
			case out <- i:
			case <-ctx.Done():
				return
			}
		}
	}
}

func runTask(ctx context.Context, task Task, logger *zerolog.Logger) {
	defer RecoverPanic(logger, task.Name)

	start := time.Now()

	if err := task.Run(ctx); err != nil {
		logger.Error().Err(err).Str(logFieldTask, task.Name).Msg("task failed")
		return
	}

	logger.Debug().Str(logFieldTask, task.Name).Dur("duration", time.Since(start)).Msg("task done")
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}

// getLogger returns the provided logger or a nop logger if nil.
func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
