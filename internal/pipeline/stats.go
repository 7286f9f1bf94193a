package pipeline

import "time"

// IngestionStats summarizes one ingestion run
type IngestionStats struct {
	RunID              string        `json:"run_id"`
	SourcesFetched     int           `json:"sources_fetched"`
	SourcesFailed      int           `json:"sources_failed"`
	CandidatesSeen     int           `json:"candidates_seen"`
	DuplicatesSkipped  int           `json:"duplicates_skipped"`
	ArticlesProcessed  int           `json:"articles_processed"`
	EntitiesExtracted  int           `json:"entities_extracted"`
	SummariesGenerated int           `json:"summaries_generated"`
	Warnings           int           `json:"warnings"`
	Errors             int           `json:"errors"`
	Duration           time.Duration `json:"duration_ns"`
}

// ViewpointStats summarizes one viewpoint run
type ViewpointStats struct {
	RunID               string        `json:"run_id"`
	ArticlesConsidered  int           `json:"articles_considered"`
	ViewpointsGenerated int           `json:"viewpoints_generated"`
	BriefsGenerated     int           `json:"briefs_generated"`
	BriefBackfills      int           `json:"brief_backfills"`
	Warnings            int           `json:"warnings"`
	Errors              int           `json:"errors"`
	Duration            time.Duration `json:"duration_ns"`
}

// RoundtableStats summarizes one roundtable run
type RoundtableStats struct {
	RunID                string        `json:"run_id"`
	ArticlesConsidered   int           `json:"articles_considered"`
	ViewpointsGenerated  int           `json:"viewpoints_generated"`
	RoundtablesGenerated int           `json:"roundtables_generated"`
	Skipped              int           `json:"skipped"`
	Warnings             int           `json:"warnings"`
	Errors               int           `json:"errors"`
	Duration             time.Duration `json:"duration_ns"`
}
