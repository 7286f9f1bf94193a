// Package scheduler runs pipelines on independent fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"healthwire/internal/logger"
	"healthwire/internal/pipeline"
)

// Job is a periodic pipeline run.
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration // zero means no per-run deadline
	Fn       func(ctx context.Context) error
}

// Scheduler starts each registered job immediately and then on its interval
// until the context passed to Start is cancelled.
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
	log  *slog.Logger
}

func New() *Scheduler {
	return &Scheduler{log: logger.Get()}
}

// Add registers a job. Jobs with a non-positive interval are ignored.
func (s *Scheduler) Add(j Job) {
	if j.Interval <= 0 {
		s.log.Warn("Ignoring job without interval", "job", j.Name)
		return
	}
	s.jobs = append(s.jobs, j)
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	s.log.Info("Job scheduled", "job", j.Name, "interval", j.Interval)

	s.execute(ctx, j)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Job stopping", "job", j.Name)
			return
		case <-ticker.C:
			s.execute(ctx, j)
		}
	}
}

// execute runs one tick. A run refused because another holder has the run
// lock is expected and logged at info level.
func (s *Scheduler) execute(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.Fn(runCtx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.log.Info("Job skipped, run already in progress", "job", j.Name)
	case err != nil:
		s.log.Error("Job failed", "job", j.Name, "error", err)
	default:
		s.log.Info("Job completed", "job", j.Name, "duration", time.Since(start))
	}
}

// PipelineJobs returns the ingestion and viewpoint jobs for p.
func PipelineJobs(p *pipeline.Pipeline, ingestEvery, viewpointsEvery, timeout time.Duration) []Job {
	return []Job{
		{
			Name:     pipeline.NameIngestion,
			Interval: ingestEvery,
			Timeout:  timeout,
			Fn: func(ctx context.Context) error {
				_, err := p.RunIngestion(ctx)
				return err
			},
		},
		{
			Name:     pipeline.NameViewpoints,
			Interval: viewpointsEvery,
			Timeout:  timeout,
			Fn: func(ctx context.Context) error {
				_, err := p.RunViewpoints(ctx)
				return err
			},
		},
	}
}
