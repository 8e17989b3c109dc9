package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seenimoa/marketpulse/internal/classifier"
	"github.com/seenimoa/marketpulse/internal/config"
	"github.com/seenimoa/marketpulse/internal/datasource"
	"github.com/seenimoa/marketpulse/internal/dictionary"
	"github.com/seenimoa/marketpulse/internal/extract"
	"github.com/seenimoa/marketpulse/internal/infra"
	"github.com/seenimoa/marketpulse/internal/llm"
	"github.com/seenimoa/marketpulse/internal/market"
	"github.com/seenimoa/marketpulse/internal/metrics"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	provider   llm.LLMProvider
	classifier classifier.Classifier
	service    *market.Service
	metrics    *metrics.Metrics
}

// newApp loads the dictionaries and builds the collaborators and the market
// service. Unreadable dictionaries are fatal. limit overrides
// cfg.Pipeline.Limit when non-negative.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, limit int) (*app, error) {
	dict, err := dictionary.Load(cfg.Data.CompaniesDictionary, cfg.Data.SectorsDictionary)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProviderFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	checkProvider(ctx, provider, logger)

	extractor := extract.New(provider, dict,
		extract.WithChatOptions(llm.ChatOptions{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
		extract.WithRateLimiter(infra.NewRateLimiter(cfg.Extraction.RatePerSecond, cfg.Extraction.Burst)),
		extract.WithCallTimeout(cfg.Extraction.CallTimeout),
		extract.WithCache(cfg.Extraction.CacheTTL),
		extract.WithLogger(logger.With("component", "extract")),
	)

	cl, err := classifier.New(cfg.Classifier, logger.With("component", "classifier"))
	if err != nil {
		return nil, err
	}

	if limit < 0 {
		limit = cfg.Pipeline.Limit
	}

	m := metrics.New()
	pipeline := market.NewPipeline(extractor, cl,
		market.WithWorkers(cfg.Pipeline.Workers),
		market.WithPipelineLogger(logger.With("component", "pipeline")),
	)
	svc := market.NewService(pipeline, newSource(cfg, logger),
		market.WithLimit(limit),
		market.WithCoefficients(cfg.Data.CoefficientsPath, datasource.LoadCoefficients),
		market.WithMetrics(m),
		market.WithServiceLogger(logger.With("component", "market")),
	)

	logger.Info("components ready",
		"llm", provider.Name(),
		"classifier", cl.Name(),
		"limit", limit,
		"workers", cfg.Pipeline.Workers,
	)
	return &app{cfg: cfg, logger: logger, provider: provider, classifier: cl, service: svc, metrics: m}, nil
}

// checkProvider pings the LLM provider once. An unreachable provider is not
// fatal: every extraction then falls back to Unknown, so it is logged loudly.
func checkProvider(ctx context.Context, p llm.LLMProvider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		logger.Error("llm provider unreachable, extractions will report Unknown",
			"provider", p.Name(), "error", err)
		return
	}
	logger.Info("llm provider reachable", "provider", p.Name())
}

// newSource selects the feed source when feed URLs are configured, the
// tabular file otherwise.
func newSource(cfg *config.Config, logger *slog.Logger) market.ArticleSource {
	if len(cfg.Data.FeedURLs) > 0 {
		return datasource.NewFeedSource(cfg.Data.FeedURLs,
			datasource.WithFeedLogger(logger.With("component", "feed")))
	}
	return datasource.NewTabularSource(cfg.Data.ArticlesPath)
}

// initClassifier initialises the classifier within the configured timeout and
// opens the service. A failure here aborts startup.
func (a *app) initClassifier(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Classifier.InitTimeout)
	defer cancel()

	if err := a.classifier.Init(ctx); err != nil {
		return fmt.Errorf("classifier %s: init: %w", a.classifier.Name(), err)
	}
	a.service.MarkReady()
	a.logger.Info("classifier initialised", "backend", a.classifier.Name())
	return nil
}
