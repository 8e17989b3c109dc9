// Package market turns scored articles into a market sentiment snapshot and
// serves the latest snapshot.
package market

import (
	"github.com/seenimoa/marketpulse/internal/classifier"
	"github.com/seenimoa/marketpulse/pkg/models"
)

// Verdict thresholds. Scores on a threshold are Neutral.
const (
	NegativeThreshold = -20.0
	PositiveThreshold = 20.0
)

// DefaultCoefficient is the weight of a sector missing from the coefficient table.
const DefaultCoefficient = 1.0

// LabelForCode maps a classifier code to its label. The order is fixed by the
// model: 0 positive, 1 negative, 2 neutral.
func LabelForCode(code int) models.SentimentLabel {
	switch code {
	case classifier.CodePositive:
		return models.SentimentPositive
	case classifier.CodeNegative:
		return models.SentimentNegative
	case classifier.CodeNeutral:
		return models.SentimentNeutral
	default:
		return models.SentimentUnrecognized
	}
}

// SentimentScore returns the signed contribution of a label.
func SentimentScore(label models.SentimentLabel) int {
	switch label {
	case models.SentimentPositive:
		return 1
	case models.SentimentNegative:
		return -1
	default:
		return 0
	}
}

// Coefficients maps a sector name to its weight.
type Coefficients map[string]float64

// Lookup returns the weight of sector, or DefaultCoefficient when absent.
// A nil table is valid.
func (c Coefficients) Lookup(sector string) float64 {
	if w, ok := c[sector]; ok {
		return w
	}
	return DefaultCoefficient
}

// VerdictFor thresholds a total score.
func VerdictFor(total float64) models.Verdict {
	switch {
	case total < NegativeThreshold:
		return models.VerdictNegative
	case total > PositiveThreshold:
		return models.VerdictPositive
	default:
		return models.VerdictNeutral
	}
}

// TotalScore sums the article scores of records.
func TotalScore(records []models.ArticleRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.ArticleScore
	}
	return total
}
