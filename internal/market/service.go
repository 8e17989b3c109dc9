package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/marketpulse/internal/metrics"
	"github.com/seenimoa/marketpulse/pkg/models"
)

var (
	// ErrNotReady is returned by Refresh and AnalyzeSingle before MarkReady.
	ErrNotReady = errors.New("market: classifier not ready")

	// ErrSourceUnavailable wraps article source failures. The stored
	// snapshot is unchanged when a refresh returns it.
	ErrSourceUnavailable = errors.New("market: article source unavailable")
)

// CoefficientLoader reads the sector coefficient table at path.
type CoefficientLoader func(path string) (map[string]float64, error)

// SingleAnalysis is the collaborator view of one article, without scoring.
type SingleAnalysis struct {
	SentimentLabel models.SentimentLabel `json:"sentiment_text_label"`
	Sector         string                `json:"sector"`
	Companies      []models.Company      `json:"companies"`
}

// Service owns the published snapshot and the operations that read or
// replace it.
type Service struct {
	pipeline *Pipeline
	source   ArticleSource
	store    *Store

	coefficientsPath string
	loadCoefficients CoefficientLoader
	limit            int

	metrics *metrics.Metrics
	logger  *slog.Logger
	newID   func() string

	ready     atomic.Bool
	refreshMu sync.Mutex

	subsMu      sync.RWMutex
	subscribers []func(*models.MarketSnapshot)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLimit caps the number of articles scored per run. 0 means all.
func WithLimit(n int) ServiceOption {
	return func(s *Service) { s.limit = n }
}

// WithCoefficients sets where and how the coefficient table is read before
// every run. Without it every sector weighs DefaultCoefficient.
func WithCoefficients(path string, load CoefficientLoader) ServiceOption {
	return func(s *Service) {
		s.coefficientsPath = path
		s.loadCoefficients = load
	}
}

// WithMetrics records runs on m.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service holding the empty initial snapshot. It is not
// ready until MarkReady is called.
func NewService(pipeline *Pipeline, source ArticleSource, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline: pipeline,
		source:   source,
		store:    NewStore(),
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkReady opens the service for Refresh and AnalyzeSingle.
func (s *Service) MarkReady() { s.ready.Store(true) }

// Ready reports whether MarkReady was called.
func (s *Service) Ready() bool { return s.ready.Load() }

// Snapshot returns the published snapshot. Before the first successful run
// it is the empty snapshot with verdict "Not analyzed".
func (s *Service) Snapshot() *models.MarketSnapshot {
	return s.store.Load()
}

// OnRefresh registers fn to be called with every newly published snapshot.
func (s *Service) OnRefresh(fn func(*models.MarketSnapshot)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Refresh re-reads the article source and the coefficient table, runs the
// pipeline and publishes the result. Concurrent calls run one after another.
// On any error the published snapshot is left as it was.
func (s *Service) Refresh(ctx context.Context) (*models.MarketSnapshot, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	snap, err := s.run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		result := metrics.ResultFailure
		if ctx.Err() != nil {
			result = metrics.ResultCancelled
		}
		s.metrics.ObserveRun(result, elapsed)
		s.logger.Error("market refresh failed", "error", err, "duration", elapsed)
		return nil, err
	}

	s.store.Publish(snap)
	s.metrics.ObserveRun(metrics.ResultSuccess, elapsed)
	s.metrics.ObserveSnapshot(snap.ArticleCount, snap.ExtractionFailures, snap.ClassificationFailures, snap.TotalScore, snap.ComputedAt)
	s.logger.Info("market refreshed",
		"run_id", snap.RunID,
		"articles", snap.ArticleCount,
		"extraction_failures", snap.ExtractionFailures,
		"classification_failures", snap.ClassificationFailures,
		"total_score", snap.TotalScore,
		"verdict", snap.Verdict,
		"duration", elapsed,
	)

	s.subsMu.RLock()
	subs := append([]func(*models.MarketSnapshot){}, s.subscribers...)
	s.subsMu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
	return snap, nil
}

func (s *Service) run(ctx context.Context) (*models.MarketSnapshot, error) {
	articles, err := s.source.Articles(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("market: read articles: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	runID := s.newID()
	s.logger.Info("market refresh started", "run_id", runID, "articles", len(articles), "limit", s.limit)

	snap, err := s.pipeline.Run(ctx, articles, s.coefficients(), s.limit)
	if err != nil {
		return nil, err
	}
	snap.RunID = runID
	return snap, nil
}

// coefficients reads the table for one run. A missing or malformed table
// leaves every sector at the default weight.
func (s *Service) coefficients() Coefficients {
	if s.loadCoefficients == nil {
		return nil
	}
	table, err := s.loadCoefficients(s.coefficientsPath)
	if err != nil {
		s.logger.Warn("coefficient table unavailable, using default weights",
			"path", s.coefficientsPath, "error", err)
		return nil
	}
	return table
}

// AnalyzeSingle runs both collaborators for one caller-supplied article. The
// published snapshot is not touched.
func (s *Service) AnalyzeSingle(ctx context.Context, a models.Article) (*SingleAnalysis, error) {
	if !s.Ready() {
		return nil, ErrNotReady
	}
	ex, st := s.pipeline.Analyze(ctx, a)
	return &SingleAnalysis{
		SentimentLabel: st.Label,
		Sector:         ex.Value.Sector,
		Companies:      ex.Value.Companies,
	}, nil
}
