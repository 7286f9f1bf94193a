package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"healthwire/internal/pipeline"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch sources and enrich new articles once",
		Long: `Run the ingestion pipeline once: fetch every enabled source, skip articles
already stored (same content hash or URL), then extract entities and write a
scored summary for each new article.

Example:
  healthwire ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				stats, err := p.RunIngestion(ctx)
				if stats != nil {
					fmt.Println(ingestionSummary(stats))
				}
				return err
			})
		},
	}
}

// NewViewpointsCmd creates the viewpoints command
func NewViewpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "viewpoints",
		Short: "Write analyst viewpoints and audience briefs once",
		Long: `Run the viewpoint pipeline once: route each summarized article at or above the
relevance threshold to one analyst persona, store the viewpoint, then derive
one brief per output persona.

Example:
  healthwire viewpoints`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				stats, err := p.RunViewpoints(ctx)
				if stats != nil {
					fmt.Println(viewpointSummary(stats))
				}
				return err
			})
		},
	}
}

// NewRoundtableCmd creates the roundtable command
func NewRoundtableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roundtable",
		Short: "Merge the analyst panel into roundtable discussions once",
		Long: `Run the roundtable pipeline once: for each relevant article without a
roundtable, collect (or generate) the three panel viewpoints and merge them
into one moderated discussion.

Example:
  healthwire roundtable`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), func(ctx context.Context, p *pipeline.Pipeline) error {
				stats, err := p.RunRoundtable(ctx)
				if stats != nil {
					fmt.Println(roundtableSummary(stats))
				}
				return err
			})
		},
	}
}

// runPipeline connects, builds the pipeline and runs fn until it returns or
// the process is interrupted.
func runPipeline(parent context.Context, fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	if parent == nil {
		parent = context.Background()
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

	err = fn(ctx, p)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		fmt.Println(warnStyle.Render("Another run of this pipeline is in progress; nothing to do."))
	}
	return err
}

func ingestionSummary(s *pipeline.IngestionStats) string {
	return renderSummary("Ingestion run "+s.RunID, []statRow{
		{label: "Sources fetched", value: s.SourcesFetched},
		{label: "Sources failed", value: s.SourcesFailed, warn: true},
		{label: "Candidates seen", value: s.CandidatesSeen},
		{label: "Duplicates skipped", value: s.DuplicatesSkipped},
		{label: "Articles processed", value: s.ArticlesProcessed},
		{label: "Entities extracted", value: s.EntitiesExtracted},
		{label: "Summaries generated", value: s.SummariesGenerated},
		{label: "Warnings", value: s.Warnings, warn: true},
		{label: "Errors", value: s.Errors, warn: true},
		{label: "Duration", value: s.Duration.Round(time.Millisecond)},
	})
}

func viewpointSummary(s *pipeline.ViewpointStats) string {
	return renderSummary("Viewpoint run "+s.RunID, []statRow{
		{label: "Articles considered", value: s.ArticlesConsidered},
		{label: "Viewpoints generated", value: s.ViewpointsGenerated},
		{label: "Briefs generated", value: s.BriefsGenerated},
		{label: "Articles re-briefed", value: s.BriefBackfills},
		{label: "Warnings", value: s.Warnings, warn: true},
		{label: "Errors", value: s.Errors, warn: true},
		{label: "Duration", value: s.Duration.Round(time.Millisecond)},
	})
}

func roundtableSummary(s *pipeline.RoundtableStats) string {
	return renderSummary("Roundtable run "+s.RunID, []statRow{
		{label: "Articles considered", value: s.ArticlesConsidered},
		{label: "Viewpoints generated", value: s.ViewpointsGenerated},
		{label: "Roundtables generated", value: s.RoundtablesGenerated},
		{label: "Skipped", value: s.Skipped, warn: true},
		{label: "Warnings", value: s.Warnings, warn: true},
		{label: "Errors", value: s.Errors, warn: true},
		{label: "Duration", value: s.Duration.Round(time.Millisecond)},
	})
}
