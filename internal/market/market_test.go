package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/marketpulse/internal/logging"
	"github.com/seenimoa/marketpulse/internal/metrics"
	"github.com/seenimoa/marketpulse/pkg/models"
)

// ── fakes ──

type fakeExtractor struct {
	sectors map[string]string // article id -> sector
	fail    map[string]bool
	calls   atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, a models.Article) (models.SectorExtraction, error) {
	f.calls.Add(1)
	if f.fail[a.ID] {
		return models.SectorExtraction{}, errors.New("llm quota exceeded")
	}
	return models.SectorExtraction{
		Sector:    f.sectors[a.ID],
		Companies: []models.Company{{Name: "Co " + a.ID, StockID: "C" + a.ID}},
	}, nil
}

type fakeClassifier struct {
	codes map[string]int // content -> code
	fail  map[string]bool
	block chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (int, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.fail[text] {
		return 0, errors.New("inference server down")
	}
	return f.codes[text], nil
}

type fakeSource struct {
	mu       sync.Mutex
	articles []models.Article
	err      error
}

func (f *fakeSource) Articles(ctx context.Context) ([]models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Article(nil), f.articles...), nil
}

func (f *fakeSource) set(articles []models.Article, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles, f.err = articles, err
}

// scenario returns three articles with sentiment scores [1, -1, 0] in
// sectors weighted [2, 1, 5].
func scenario() ([]models.Article, *fakeExtractor, *fakeClassifier, Coefficients) {
	articles := []models.Article{
		{ID: "1", Title: "Ngân hàng lãi lớn", Content: "good"},
		{ID: "2", Title: "Thép thua lỗ", Content: "bad"},
		{ID: "3", Title: "Bất động sản đi ngang", Content: "flat"},
	}
	ex := &fakeExtractor{sectors: map[string]string{"1": "Ngân hàng", "2": "Thép", "3": "Bất động sản"}}
	cl := &fakeClassifier{codes: map[string]int{"good": 0, "bad": 1, "flat": 2}}
	coeffs := Coefficients{"Ngân hàng": 2, "Thép": 1, "Bất động sản": 5}
	return articles, ex, cl, coeffs
}

func newPipeline(ex Extractor, cl Classifier, opts ...PipelineOption) *Pipeline {
	return NewPipeline(ex, cl, append([]PipelineOption{WithPipelineLogger(logging.Discard())}, opts...)...)
}

// ── scoring ──

func TestLabelForCode(t *testing.T) {
	tests := []struct {
		code  int
		label models.SentimentLabel
		score int
	}{
		{0, models.SentimentPositive, 1},
		{1, models.SentimentNegative, -1},
		{2, models.SentimentNeutral, 0},
		{3, models.SentimentUnrecognized, 0},
		{-1, models.SentimentUnrecognized, 0},
	}
	for _, tt := range tests {
		label := LabelForCode(tt.code)
		assert.Equal(t, tt.label, label, "code %d", tt.code)
		assert.Equal(t, tt.score, SentimentScore(label), "code %d", tt.code)
	}
	assert.Equal(t, 0, SentimentScore(models.SentimentError))
}

func TestVerdictFor(t *testing.T) {
	tests := []struct {
		total float64
		want  models.Verdict
	}{
		{-20.0001, models.VerdictNegative},
		{-20, models.VerdictNeutral},
		{0, models.VerdictNeutral},
		{20, models.VerdictNeutral},
		{20.0001, models.VerdictPositive},
		{-150, models.VerdictNegative},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerdictFor(tt.total), "total %v", tt.total)
	}
}

func TestCoefficientsLookup(t *testing.T) {
	c := Coefficients{"Thép": 0.5}
	assert.Equal(t, 0.5, c.Lookup("Thép"))
	assert.Equal(t, DefaultCoefficient, c.Lookup("Dầu khí"))
	assert.Equal(t, DefaultCoefficient, Coefficients(nil).Lookup("Thép"))
}

// ── pipeline ──

func TestPipelineScenario(t *testing.T) {
	articles, ex, cl, coeffs := scenario()

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 0)
	require.NoError(t, err)

	require.Len(t, snap.Articles, 3)
	var scores []float64
	for _, r := range snap.Articles {
		scores = append(scores, r.ArticleScore)
	}
	assert.Equal(t, []float64{2, -1, 0}, scores)
	assert.Equal(t, 1.0, snap.TotalScore)
	assert.Equal(t, models.VerdictNeutral, snap.Verdict)
	assert.Equal(t, 3, snap.ArticleCount)
	assert.Equal(t, "1", snap.Articles[0].ID)
	assert.Equal(t, models.SentimentPositive, snap.Articles[0].SentimentLabel)
	assert.Equal(t, 0, snap.Articles[0].SentimentCode)
}

func TestPipelineOrderIndependent(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	reversed := []models.Article{articles[2], articles[0], articles[1]}

	a, err := newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 0)
	require.NoError(t, err)
	b, err := newPipeline(ex, cl, WithWorkers(3)).Run(context.Background(), reversed, coeffs, 0)
	require.NoError(t, err)

	assert.Equal(t, a.TotalScore, b.TotalScore)
	assert.Equal(t, "3", b.Articles[0].ID, "records keep input order")
}

func TestPipelineLimit(t *testing.T) {
	articles, ex, cl, coeffs := scenario()

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 2)
	require.NoError(t, err)
	require.Len(t, snap.Articles, 2)
	assert.Equal(t, 1.0, snap.TotalScore)
	assert.EqualValues(t, 2, ex.calls.Load(), "excluded articles are never sent to the extractor")

	snap, err = newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 10)
	require.NoError(t, err)
	assert.Len(t, snap.Articles, 3)
}

func TestPipelineEmptyBatch(t *testing.T) {
	_, ex, cl, coeffs := scenario()

	snap, err := newPipeline(ex, cl).Run(context.Background(), nil, coeffs, 0)
	require.NoError(t, err)
	assert.Empty(t, snap.Articles)
	assert.NotNil(t, snap.Articles)
	assert.Equal(t, 0.0, snap.TotalScore)
	assert.Equal(t, models.VerdictNeutral, snap.Verdict)
}

func TestPipelineExtractorFailure(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	ex.fail = map[string]bool{"1": true}

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 0)
	require.NoError(t, err)

	rec := snap.Articles[0]
	assert.Equal(t, models.UnknownSector, rec.Sector)
	assert.Equal(t, []models.Company{}, rec.Companies)
	assert.Equal(t, 1.0, rec.Coefficient)
	assert.Equal(t, 1.0, rec.ArticleScore)
	assert.Equal(t, 1, snap.ExtractionFailures)
	assert.Equal(t, 0, snap.ClassificationFailures)
}

func TestPipelineClassifierFailure(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	ex.fail = map[string]bool{"2": true}
	cl.fail = map[string]bool{"bad": true}

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 0)
	require.NoError(t, err)

	rec := snap.Articles[1]
	assert.Equal(t, models.SentimentError, rec.SentimentLabel)
	assert.Equal(t, models.SentimentCodeError, rec.SentimentCode)
	assert.Equal(t, 0, rec.SentimentScore)
	assert.Equal(t, 0.0, rec.ArticleScore, "score defined when both collaborators fail")
	assert.Equal(t, 1, snap.ClassificationFailures)
}

func TestPipelineUnrecognizedCode(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	cl.codes["good"] = 7

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles, coeffs, 0)
	require.NoError(t, err)

	rec := snap.Articles[0]
	assert.Equal(t, models.SentimentUnrecognized, rec.SentimentLabel)
	assert.Equal(t, 7, rec.SentimentCode)
	assert.Equal(t, 0.0, rec.ArticleScore)
	assert.Equal(t, 0, snap.ClassificationFailures)
}

func TestPipelineMissingCoefficient(t *testing.T) {
	articles, ex, cl, _ := scenario()

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles[:1], Coefficients{"Thép": 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Articles[0].Coefficient)
	assert.Equal(t, 1.0, snap.Articles[0].ArticleScore)
}

func TestPipelineEmptySectorBecomesUnknown(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	delete(ex.sectors, "1")

	snap, err := newPipeline(ex, cl).Run(context.Background(), articles[:1], coeffs, 0)
	require.NoError(t, err)
	assert.Equal(t, models.UnknownSector, snap.Articles[0].Sector)
	assert.Equal(t, 0, snap.ExtractionFailures)
}

func TestPipelineCancelled(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	cl.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := newPipeline(ex, cl).Run(ctx, articles, coeffs, 0)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

// ── service ──

func newService(t *testing.T, src ArticleSource, ex Extractor, cl Classifier, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithServiceLogger(logging.Discard())}, opts...)
	s := NewService(newPipeline(ex, cl), src, opts...)
	s.MarkReady()
	return s
}

func staticCoefficients(c Coefficients) CoefficientLoader {
	return func(string) (map[string]float64, error) { return c, nil }
}

func TestServiceInitialSnapshot(t *testing.T) {
	_, ex, cl, _ := scenario()
	s := NewService(newPipeline(ex, cl), &fakeSource{})

	snap := s.Snapshot()
	assert.False(t, snap.Analyzed())
	assert.Equal(t, models.VerdictNotAnalyzed, snap.Verdict)
	assert.Empty(t, snap.Articles)
}

func TestServiceNotReady(t *testing.T) {
	_, ex, cl, _ := scenario()
	s := NewService(newPipeline(ex, cl), &fakeSource{})

	_, err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.AnalyzeSingle(context.Background(), models.Article{ID: "x"})
	assert.ErrorIs(t, err, ErrNotReady)

	s.MarkReady()
	assert.True(t, s.Ready())
}

func TestServiceRefresh(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	m := metrics.New()
	s := newService(t, &fakeSource{articles: articles}, ex, cl,
		WithCoefficients("coef.csv", staticCoefficients(coeffs)),
		WithMetrics(m),
	)

	var notified *models.MarketSnapshot
	s.OnRefresh(func(snap *models.MarketSnapshot) { notified = snap })

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Analyzed())
	assert.Equal(t, 1.0, snap.TotalScore)
	assert.Same(t, snap, s.Snapshot())
	assert.Same(t, snap, notified)
}

func TestServiceRefreshLimit(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	s := newService(t, &fakeSource{articles: articles}, ex, cl,
		WithCoefficients("", staticCoefficients(coeffs)), WithLimit(1))

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ArticleCount)
	assert.Equal(t, 2.0, snap.TotalScore)
}

func TestServiceRefreshFailureKeepsSnapshot(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	src := &fakeSource{articles: articles}
	s := newService(t, src, ex, cl, WithCoefficients("", staticCoefficients(coeffs)))

	before, err := s.Refresh(context.Background())
	require.NoError(t, err)

	src.set(nil, errors.New("open economy_articles.csv: no such file"))
	_, err = s.Refresh(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Same(t, before, s.Snapshot())
}

func TestServiceCancelledRefreshKeepsSnapshot(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	s := newService(t, &fakeSource{articles: articles}, ex, cl, WithCoefficients("", staticCoefficients(coeffs)))
	before := s.Snapshot()

	cl.block = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, before, s.Snapshot())
}

func TestServiceCoefficientLoadFailure(t *testing.T) {
	articles, ex, cl, _ := scenario()
	s := newService(t, &fakeSource{articles: articles}, ex, cl,
		WithCoefficients("missing.csv", func(string) (map[string]float64, error) {
			return nil, errors.New("no such file")
		}))

	snap, err := s.Refresh(context.Background())
	require.NoError(t, err)
	for _, r := range snap.Articles {
		assert.Equal(t, DefaultCoefficient, r.Coefficient)
	}
	assert.Equal(t, 0.0, snap.TotalScore)
}

func TestServiceConcurrentRefresh(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	s := newService(t, &fakeSource{articles: articles}, ex, cl, WithCoefficients("", staticCoefficients(coeffs)))

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.Refresh(context.Background())
			if assert.NoError(t, err) {
				ids <- snap.RunID
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			assert.Equal(t, snap.ArticleCount, len(snap.Articles))
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 8, "every refresh publishes its own snapshot")
	assert.True(t, seen[s.Snapshot().RunID])
	assert.Equal(t, 1.0, s.Snapshot().TotalScore)
}

func TestServiceAnalyzeSingle(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	s := newService(t, &fakeSource{articles: articles}, ex, cl, WithCoefficients("", staticCoefficients(coeffs)))
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	before := s.Snapshot()
	copyBefore := *before

	got, err := s.AnalyzeSingle(context.Background(), models.Article{ID: "9", Title: "x", Content: "bad"})
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNegative, got.SentimentLabel)
	assert.Equal(t, models.UnknownSector, got.Sector)
	assert.Equal(t, []models.Company{{Name: "Co 9", StockID: "C9"}}, got.Companies)

	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, copyBefore, *s.Snapshot())
}

func TestServiceAnalyzeSingleFailures(t *testing.T) {
	_, ex, cl, _ := scenario()
	ex.fail = map[string]bool{"9": true}
	cl.fail = map[string]bool{"": true}
	s := newService(t, &fakeSource{}, ex, cl)

	got, err := s.AnalyzeSingle(context.Background(), models.Article{ID: "9"})
	require.NoError(t, err)
	assert.Equal(t, &SingleAnalysis{
		SentimentLabel: models.SentimentError,
		Sector:         models.UnknownSector,
		Companies:      []models.Company{},
	}, got)
}

// ── scheduler ──

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, ex, cl, _ := scenario()
	sch := NewScheduler(newService(t, &fakeSource{}, ex, cl), time.Minute, logging.Discard())
	assert.Error(t, sch.Start("not a schedule"))
}

func TestSchedulerRefreshes(t *testing.T) {
	articles, ex, cl, coeffs := scenario()
	s := newService(t, &fakeSource{articles: articles}, ex, cl, WithCoefficients("", staticCoefficients(coeffs)))

	refreshed := make(chan struct{}, 1)
	s.OnRefresh(func(*models.MarketSnapshot) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
	})

	sch := NewScheduler(s, time.Minute, logging.Discard())
	sch.cron = cron.New(cron.WithSeconds())
	require.NoError(t, sch.Start("* * * * * *"))
	defer sch.Stop()

	select {
	case <-refreshed:
		assert.True(t, s.Snapshot().Analyzed())
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}
}
