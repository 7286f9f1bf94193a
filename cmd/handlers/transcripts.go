package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"healthwire/internal/transcripts"
)

// NewTranscriptsCmd creates the transcripts command
func NewTranscriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Manage persona voice-grounding transcripts",
	}
	cmd.AddCommand(newTranscriptsImportCmd())
	return cmd
}

func newTranscriptsImportCmd() *cobra.Command {
	var (
		persona string
		video   string
		file    string
		tags    []string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YouTube transcript for an analyst persona",
		Long: `Clean a transcript file (timestamps and cue numbers removed, whitespace
collapsed) and store it for a persona, keyed by the YouTube video id.
Re-importing the same video replaces the stored transcript.

Example:
  healthwire transcripts import --persona security-sentinel \
    --video https://www.youtube.com/watch?v=dQw4w9WgXcQ \
    --file ./talk.vtt --tags ransomware,hipaa`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscriptsImport(cmd.Context(), persona, video, file, tags)
		},
	}

	cmd.Flags().StringVar(&persona, "persona", "", "persona slug (required)")
	cmd.Flags().StringVar(&video, "video", "", "YouTube URL or 11-character video id (required)")
	cmd.Flags().StringVar(&file, "file", "", "transcript text or WebVTT file (required)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated topic tags")
	_ = cmd.MarkFlagRequired("persona")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runTranscriptsImport(ctx context.Context, persona, video, file string, tags []string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	t, err := transcripts.NewImporter(db).Import(ctx, transcripts.ImportRequest{
		PersonaSlug: persona,
		Video:       video,
		Raw:         string(raw),
		Tags:        tags,
	})
	if err != nil {
		return err
	}

	fmt.Println(renderSummary("Transcript imported", []statRow{
		{label: "Persona", value: persona},
		{label: "Video", value: t.VideoID},
		{label: "Words", value: len(strings.Fields(t.RawTranscript))},
		{label: "Tags", value: strings.Join(t.TopicTags, ", ")},
	}))
	return nil
}
