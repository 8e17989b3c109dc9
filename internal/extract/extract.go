// Package extract asks an LLM for the main sector of a news article and the
// listed companies it mentions.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/seenimoa/marketpulse/internal/dictionary"
	"github.com/seenimoa/marketpulse/internal/infra"
	"github.com/seenimoa/marketpulse/internal/llm"
	"github.com/seenimoa/marketpulse/pkg/models"
)

// ErrInvalidResponse is returned when the model reply does not match the
// extraction contract.
var ErrInvalidResponse = errors.New("extract: invalid response")

// extractionResponse is the reply contract. id and article are echoed back by
// the model but not used. Pointer fields make required a presence check, so
// empty strings pass.
type extractionResponse struct {
	ID        string            `json:"id"`
	Article   string            `json:"article"`
	Sector    *string           `json:"sector"    validate:"required"`
	Companies []companyResponse `json:"companies" validate:"required,dive"`
}

type companyResponse struct {
	Name    *string `json:"company_name"     validate:"required"`
	StockID *string `json:"company_stock_id" validate:"required"`
}

// LLMExtractor implements sector/company extraction over an llm.LLMProvider.
// It is safe for concurrent use.
type LLMExtractor struct {
	provider llm.LLMProvider
	dict     *dictionary.Set
	chat     llm.ChatOptions
	limiter  *rate.Limiter
	timeout  time.Duration
	cache    *infra.Cache[models.SectorExtraction]
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures an LLMExtractor.
type Option func(*LLMExtractor)

// WithChatOptions sets model, temperature and token limit for every call.
func WithChatOptions(opts llm.ChatOptions) Option {
	return func(e *LLMExtractor) { e.chat = opts }
}

// WithRateLimiter paces calls to the provider.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(e *LLMExtractor) { e.limiter = l }
}

// WithCallTimeout bounds each provider call. Time spent waiting on the rate
// limiter is not counted.
func WithCallTimeout(d time.Duration) Option {
	return func(e *LLMExtractor) { e.timeout = d }
}

// WithCache keeps successful extractions for ttl. Zero disables caching.
func WithCache(ttl time.Duration) Option {
	return func(e *LLMExtractor) {
		if ttl > 0 {
			e.cache = infra.NewCache[models.SectorExtraction](ttl)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *LLMExtractor) { e.logger = l }
}

// New creates an extractor.
func New(provider llm.LLMProvider, dict *dictionary.Set, opts ...Option) *LLMExtractor {
	e := &LLMExtractor{
		provider: provider,
		dict:     dict,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		timeout:  90 * time.Second,
		validate: validator.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the sector and companies for one article. Errors are
// returned unchanged to the caller, which decides on the fallback.
func (e *LLMExtractor) Extract(ctx context.Context, article models.Article) (models.SectorExtraction, error) {
	key := cacheKey(article)
	if e.cache != nil {
		if hit, ok := e.cache.Get(key); ok {
			e.logger.Debug("extraction cache hit", "article_id", article.ID)
			return hit, nil
		}
	}

	messages, err := buildMessages(e.dict, article)
	if err != nil {
		return models.SectorExtraction{}, err
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return models.SectorExtraction{}, fmt.Errorf("extract: rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	opts := e.chat
	opts.Format = responseFormat
	resp, err := e.provider.Chat(callCtx, messages, &opts)
	if err != nil {
		return models.SectorExtraction{}, fmt.Errorf("extract: %s: %w", e.provider.Name(), err)
	}

	result, err := e.parse(resp.Content)
	if err != nil {
		return models.SectorExtraction{}, err
	}
	if e.cache != nil {
		e.cache.Set(key, result)
	}
	return result, nil
}

// parse decodes and validates a reply. Code fences and surrounding prose are
// tolerated; anything else that breaks the contract is ErrInvalidResponse.
func (e *LLMExtractor) parse(content string) (models.SectorExtraction, error) {
	var raw extractionResponse
	if err := json.Unmarshal([]byte(llm.TrimJSON(content)), &raw); err != nil {
		return models.SectorExtraction{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := e.validate.Struct(&raw); err != nil {
		return models.SectorExtraction{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	// A blank sector is left empty; the pipeline reports it as Unknown.
	out := models.SectorExtraction{
		Sector:    strings.TrimSpace(*raw.Sector),
		Companies: make([]models.Company, 0, len(raw.Companies)),
	}
	for _, c := range raw.Companies {
		out.Companies = append(out.Companies, models.Company{
			Name:    strings.TrimSpace(*c.Name),
			StockID: strings.ToUpper(strings.TrimSpace(*c.StockID)),
		})
	}
	return out, nil
}

// cacheKey ties a cached result to both the id and the text, so an edited
// article is extracted again.
func cacheKey(a models.Article) string {
	sum := sha256.Sum256([]byte(a.Title + "\x00" + a.Content))
	return a.ID + ":" + hex.EncodeToString(sum[:8])
}
