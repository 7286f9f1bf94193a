package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"healthwire/internal/config"
	"healthwire/internal/logger"
	"healthwire/internal/scheduler"
)

// NewScheduleCmd creates the schedule command
func NewScheduleCmd() *cobra.Command {
	var (
		ingestEvery     time.Duration
		viewpointsEvery time.Duration
		timeout         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run ingestion and viewpoints on independent intervals",
		Long: `Run the ingestion and viewpoint pipelines on their own intervals until
interrupted. Each pipeline runs immediately on start. A tick that finds the
pipeline already running (here or in another process) is skipped.

Intervals default to pipeline.ingestion_interval and pipeline.viewpoint_interval.

Examples:
  healthwire schedule
  healthwire schedule --ingest-every 30m --viewpoints-every 2h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), ingestEvery, viewpointsEvery, timeout)
		},
	}

	cmd.Flags().DurationVar(&ingestEvery, "ingest-every", 0, "ingestion interval (default from config)")
	cmd.Flags().DurationVar(&viewpointsEvery, "viewpoints-every", 0, "viewpoint interval (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Minute, "upper bound on a single run")

	return cmd
}

func runSchedule(parent context.Context, ingestEvery, viewpointsEvery, timeout time.Duration) error {
	cfg := config.Get()
	if ingestEvery <= 0 {
		ingestEvery = config.Duration(cfg.Pipeline.IngestionInterval, time.Hour)
	}
	if viewpointsEvery <= 0 {
		viewpointsEvery = config.Duration(cfg.Pipeline.ViewpointInterval, 2*time.Hour)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(ctx, db, nil)
	if err != nil {
		return err
	}

	s := scheduler.New()
	for _, job := range scheduler.PipelineJobs(p, ingestEvery, viewpointsEvery, timeout) {
		s.Add(job)
	}

	fmt.Println(renderSummary("Scheduler started", []statRow{
		{label: "Ingestion every", value: ingestEvery},
		{label: "Viewpoints every", value: viewpointsEvery},
		{label: "Run timeout", value: timeout},
	}))
	s.Start(ctx)

	<-ctx.Done()
	logger.Info("Interrupt received, waiting for running jobs")
	s.Wait()
	return nil
}
