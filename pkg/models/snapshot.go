package models

import "time"

// Verdict is the three-way market classification derived from the total score.
type Verdict string

const (
	VerdictNegative Verdict = "Negative"
	VerdictNeutral  Verdict = "Neutral"
	VerdictPositive Verdict = "Positive"

	// VerdictNotAnalyzed marks the initial snapshot, before any run completed.
	VerdictNotAnalyzed Verdict = "Not analyzed"
)

// MarketSnapshot is the complete result of one aggregation run.
// A published snapshot is never mutated; a new run replaces it wholesale.
type MarketSnapshot struct {
	RunID                  string          `json:"run_id,omitempty"`
	ComputedAt             time.Time       `json:"computed_at"`
	Articles               []ArticleRecord `json:"articles_data"`
	ArticleCount           int             `json:"article_count"`
	TotalScore             float64         `json:"total_market_score"`
	Verdict                Verdict         `json:"market_evaluation"`
	ExtractionFailures     int             `json:"extraction_failures"`
	ClassificationFailures int             `json:"classification_failures"`
}

// EmptySnapshot returns the snapshot held before the first successful run.
func EmptySnapshot() *MarketSnapshot {
	return &MarketSnapshot{
		Articles: []ArticleRecord{},
		Verdict:  VerdictNotAnalyzed,
	}
}

// Analyzed reports whether the snapshot was produced by a pipeline run.
func (s *MarketSnapshot) Analyzed() bool {
	return s != nil && s.RunID != ""
}
