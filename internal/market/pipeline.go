package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/marketpulse/pkg/models"
)

// Extractor derives the sector and companies of an article.
type Extractor interface {
	Extract(ctx context.Context, article models.Article) (models.SectorExtraction, error)
}

// Classifier assigns a raw sentiment code to article text.
type Classifier interface {
	Classify(ctx context.Context, text string) (int, error)
}

// ArticleSource supplies the batch of articles for a run.
type ArticleSource interface {
	Articles(ctx context.Context) ([]models.Article, error)
}

// ExtractionOutcome is the result of one extractor call. When Err is set,
// Value holds the Unknown extraction.
type ExtractionOutcome struct {
	Value models.SectorExtraction
	Err   error
}

// Failed reports whether the defaults were substituted.
func (o ExtractionOutcome) Failed() bool { return o.Err != nil }

// SentimentOutcome is the result of one classifier call. When Err is set,
// Code is models.SentimentCodeError and Label is Error.
type SentimentOutcome struct {
	Code  int
	Label models.SentimentLabel
	Err   error
}

// Failed reports whether the classifier call failed.
func (o SentimentOutcome) Failed() bool { return o.Err != nil }

// Score returns the signed sentiment score of the outcome.
func (o SentimentOutcome) Score() int { return SentimentScore(o.Label) }

func extract(ctx context.Context, e Extractor, a models.Article) ExtractionOutcome {
	v, err := e.Extract(ctx, a)
	if err != nil {
		return ExtractionOutcome{Value: models.UnknownExtraction(), Err: err}
	}
	if v.Sector == "" {
		v.Sector = models.UnknownSector
	}
	if v.Companies == nil {
		v.Companies = []models.Company{}
	}
	return ExtractionOutcome{Value: v}
}

func classify(ctx context.Context, c Classifier, text string) SentimentOutcome {
	code, err := c.Classify(ctx, text)
	if err != nil {
		return SentimentOutcome{Code: models.SentimentCodeError, Label: models.SentimentError, Err: err}
	}
	return SentimentOutcome{Code: code, Label: LabelForCode(code)}
}

// Pipeline scores a batch of articles and reduces them to a snapshot.
type Pipeline struct {
	extractor  Extractor
	classifier Classifier
	workers    int
	logger     *slog.Logger
	now        func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithWorkers bounds how many articles are processed at once. Values below 1
// mean one.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a pipeline over the two collaborators.
func NewPipeline(extractor Extractor, classifier Classifier, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		extractor:  extractor,
		classifier: classifier,
		workers:    1,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run scores the first limit articles (all of them when limit <= 0) and
// returns a new snapshot. Records keep input order. Collaborator failures are
// absorbed per article; the only error is cancellation of ctx, in which case
// no snapshot is returned.
func (p *Pipeline) Run(ctx context.Context, articles []models.Article, coeffs Coefficients, limit int) (*models.MarketSnapshot, error) {
	if limit > 0 && limit < len(articles) {
		articles = articles[:limit]
	}

	records := make([]models.ArticleRecord, len(articles))
	extractFailed := make([]bool, len(articles))
	classifyFailed := make([]bool, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, a := range articles {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, ex, st := p.Score(gctx, a, coeffs)
			records[i] = rec
			extractFailed[i] = ex.Failed()
			classifyFailed[i] = st.Failed()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("market: run cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("market: run cancelled: %w", err)
	}

	snap := &models.MarketSnapshot{
		ComputedAt:   p.now(),
		Articles:     records,
		ArticleCount: len(records),
		TotalScore:   TotalScore(records),
	}
	snap.Verdict = VerdictFor(snap.TotalScore)
	for i := range records {
		if extractFailed[i] {
			snap.ExtractionFailures++
		}
		if classifyFailed[i] {
			snap.ClassificationFailures++
		}
	}
	return snap, nil
}

// Score builds the record of one article. It never fails: collaborator
// errors are logged and replaced by their defaults.
func (p *Pipeline) Score(ctx context.Context, a models.Article, coeffs Coefficients) (models.ArticleRecord, ExtractionOutcome, SentimentOutcome) {
	ex, st := p.Analyze(ctx, a)

	coef := coeffs.Lookup(ex.Value.Sector)
	score := st.Score()
	rec := models.ArticleRecord{
		Article:          a,
		SectorExtraction: ex.Value,
		SentimentCode:    st.Code,
		SentimentLabel:   st.Label,
		SentimentScore:   score,
		Coefficient:      coef,
		ArticleScore:     float64(score) * coef,
	}

	p.logger.Debug("article scored",
		"article_id", a.ID,
		"sector", rec.Sector,
		"sentiment", rec.SentimentLabel,
		"article_score", rec.ArticleScore,
	)
	return rec, ex, st
}

// Analyze runs both collaborators for one article without scoring it.
func (p *Pipeline) Analyze(ctx context.Context, a models.Article) (ExtractionOutcome, SentimentOutcome) {
	ex := extract(ctx, p.extractor, a)
	if ex.Failed() {
		p.logger.Warn("extraction failed", "article_id", a.ID, "error", ex.Err)
	}
	st := classify(ctx, p.classifier, a.Content)
	if st.Failed() {
		p.logger.Warn("classification failed", "article_id", a.ID, "error", st.Err)
	}
	return ex, st
}
