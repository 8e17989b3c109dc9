package models

// Article is a crawled news article as read from the article source.
type Article struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Content string `json:"content"` // empty when the source had no usable text
}

// Company is a listed company the extractor associated with an article.
type Company struct {
	Name    string `json:"company_name"`
	StockID string `json:"company_stock_id"`
}

// UnknownSector is reported when extraction fails or is inconclusive.
const UnknownSector = "Unknown"

// SectorExtraction is the extractor's view of an article.
type SectorExtraction struct {
	Sector    string    `json:"sector"`
	Companies []Company `json:"companies"`
}

// UnknownExtraction returns the extraction used in place of a failed call.
func UnknownExtraction() SectorExtraction {
	return SectorExtraction{Sector: UnknownSector, Companies: []Company{}}
}

// SentimentLabel is the discrete sentiment assigned to an article.
type SentimentLabel string

const (
	SentimentPositive     SentimentLabel = "Positive"
	SentimentNegative     SentimentLabel = "Negative"
	SentimentNeutral      SentimentLabel = "Neutral"
	SentimentError        SentimentLabel = "Error"
	SentimentUnrecognized SentimentLabel = "Unrecognized"
)

// SentimentCodeError is recorded as the predicted code when the classifier call failed.
const SentimentCodeError = -99

// ArticleRecord is one fully scored article of a market snapshot.
type ArticleRecord struct {
	Article
	SectorExtraction
	SentimentCode  int            `json:"sentiment_label_predicted"`
	SentimentLabel SentimentLabel `json:"sentiment_text_label"`
	SentimentScore int            `json:"sentiment_score"` // -1, 0 or 1
	Coefficient    float64        `json:"coefficient"`
	ArticleScore   float64        `json:"article_score"` // SentimentScore * Coefficient
}
