package transcripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"healthwire/internal/core"
	"healthwire/internal/llm"
	"healthwire/internal/logger"
	"healthwire/internal/persistence"
	"healthwire/internal/personas"
	"healthwire/internal/summarize"
)

// ImportRequest describes one transcript to attach to a persona.
type ImportRequest struct {
	PersonaSlug string
	Video       string // YouTube URL or bare video id
	Raw         string
	Tags        []string
}

// Importer stores cleaned transcripts against existing personas.
type Importer struct {
	personas    persistence.PersonaRepository
	transcripts persistence.TranscriptRepository
	log         *slog.Logger
}

// NewImporter creates a transcript importer.
func NewImporter(db persistence.Database) *Importer {
	return &Importer{personas: db.Personas(), transcripts: db.Transcripts(), log: logger.Get()}
}

// Import cleans the raw transcript and upserts it by video id.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*core.Transcript, error) {
	videoID, err := ExtractVideoID(req.Video)
	if err != nil {
		return nil, err
	}

	persona, err := im.personas.GetBySlug(ctx, req.PersonaSlug)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", personas.ErrUnknownPersona, req.PersonaSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("load persona %s: %w", req.PersonaSlug, err)
	}

	text := Clean(req.Raw)
	if text == "" {
		return nil, fmt.Errorf("transcript for video %s is empty after cleaning", videoID)
	}

	t := &core.Transcript{
		PersonaID:        persona.ID,
		VideoID:          videoID,
		RawTranscript:    text,
		TopicTags:        summarize.NormalizeTags(req.Tags),
		ProcessingStatus: "processed",
	}
	if err := im.transcripts.Upsert(ctx, t); err != nil {
		return nil, fmt.Errorf("store transcript %s: %w", videoID, err)
	}

	im.log.Info("Imported transcript", "persona", req.PersonaSlug, "video_id", videoID, "chars", len(text))
	return t, nil
}

// SelectExcerpts picks up to n excerpts of at most maxChars runes each,
// preferring transcripts whose tags overlap the article's. Equal overlap keeps
// the input order, which the store returns newest first.
func SelectExcerpts(ts []core.Transcript, articleTags []string, n, maxChars int) []string {
	if n <= 0 || len(ts) == 0 {
		return nil
	}

	want := make(map[string]bool, len(articleTags))
	for _, tag := range summarize.NormalizeTags(articleTags) {
		want[tag] = true
	}

	type scored struct {
		text    string
		overlap int
	}
	ranked := make([]scored, 0, len(ts))
	for _, t := range ts {
		overlap := 0
		for _, tag := range summarize.NormalizeTags(t.TopicTags) {
			if want[tag] {
				overlap++
			}
		}
		ranked = append(ranked, scored{text: t.RawTranscript, overlap: overlap})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].overlap > ranked[j].overlap })

	var out []string
	for _, r := range ranked {
		text := llm.ClipText(r.text, maxChars)
		if text == "" {
			continue
		}
		out = append(out, text)
		if len(out) == n {
			break
		}
	}
	return out
}
