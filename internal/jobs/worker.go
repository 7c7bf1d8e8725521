package jobs

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

type WorkerConfig struct {
	Concurrency int
	SweepEvery  time.Duration
}

// Worker owns the asynq server that executes tasks and the scheduler that
// enqueues the periodic sweep.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *slog.Logger
}

func NewWorker(redisOpt asynq.RedisConnOpt, processor *Processor, cfg WorkerConfig, logger *slog.Logger) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	asynqLogger := slogAdapter{logger: logger.With("component", "asynq")}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
		RetryDelayFunc: retryDelay,
		Logger:         asynqLogger,
	})

	mux := asynq.NewServeMux()
	processor.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger})
	if cfg.SweepEvery > 0 {
		if _, err := scheduler.Register(fmt.Sprintf("@every %s", cfg.SweepEvery), NewSweepTask()); err != nil {
			return nil, fmt.Errorf("register sweep schedule: %w", err)
		}
	}

	return &Worker{server: server, scheduler: scheduler, mux: mux, logger: logger}, nil
}

func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	w.logger.Info("background worker started")
	return nil
}

func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
	w.logger.Info("background worker stopped")
}

// slogAdapter lets asynq log through the application logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
