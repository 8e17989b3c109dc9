package classifier

import (
	"context"
	"strings"
)

// ------------------------------------------------------------------
// Keyword-based classifier (offline, no model server needed).
// Useful for development and as a deterministic stand-in for the
// pretrained model.
// ------------------------------------------------------------------

// positive / negative keyword dictionaries (lowercase).
var positiveWords = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "upbeat": 0.5,
	"growth": 0.4, "upgrade": 0.6, "outperform": 0.6,
	"strong": 0.4, "recovery": 0.5, "record high": 0.7,
	"beats estimate": 0.6, "expansion": 0.4, "profit": 0.3, "dividend": 0.4,

	"tăng trưởng": 0.5, "lợi nhuận": 0.3, "kỷ lục": 0.6, "khởi sắc": 0.6,
	"tích cực": 0.4, "bứt phá": 0.6, "tăng mạnh": 0.6, "phục hồi": 0.5,
	"vượt kế hoạch": 0.6, "cổ tức": 0.4, "lãi lớn": 0.6, "thuận lợi": 0.4,
}

var negativeWords = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6,
	"downgrade": 0.6, "underperform": 0.6, "weak": 0.4, "decline": 0.5,
	"loss": 0.4, "selloff": 0.7, "default": 0.7, "fraud": 0.8,
	"investigation": 0.5, "warning": 0.5, "recession": 0.7,

	"giảm mạnh": 0.6, "thua lỗ": 0.7, "sụt giảm": 0.5, "tiêu cực": 0.4,
	"phá sản": 0.8, "nợ xấu": 0.6, "lao dốc": 0.7, "khó khăn": 0.4,
	"suy thoái": 0.7, "lừa đảo": 0.8, "khởi tố": 0.6, "bán tháo": 0.7,
}

// neutralBand is the net score below which text is labelled neutral.
const neutralBand = 0.15

// Lexicon classifies text by weighted keyword matches.
type Lexicon struct{}

// NewLexicon returns a keyword classifier. It needs no initialisation.
func NewLexicon() *Lexicon { return &Lexicon{} }

func (l *Lexicon) Name() string { return BackendLexicon }

func (l *Lexicon) Init(ctx context.Context) error { return nil }

// Classify returns CodePositive, CodeNegative or CodeNeutral.
func (l *Lexicon) Classify(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	score := Score(text)
	switch {
	case score > neutralBand:
		return CodePositive, nil
	case score < -neutralBand:
		return CodeNegative, nil
	default:
		return CodeNeutral, nil
	}
}

// Score returns a net sentiment in -1.0 (very negative) to +1.0 (very positive).
func Score(text string) float64 {
	lower := strings.ToLower(text)

	pos, neg := 0.0, 0.0
	for word, weight := range positiveWords {
		if strings.Contains(lower, word) {
			pos += weight
		}
	}
	for word, weight := range negativeWords {
		if strings.Contains(lower, word) {
			neg += weight
		}
	}

	total := pos + neg
	if total == 0 {
		return 0
	}
	return (pos - neg) / total
}
