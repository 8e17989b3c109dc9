// Package api provides the HTTP server for the market sentiment service.
//
// It exposes the latest market snapshot, single-article analysis, on-demand
// refresh, prometheus metrics and a WebSocket feed of refresh events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/seenimoa/marketpulse/internal/config"
	"github.com/seenimoa/marketpulse/internal/llm"
	"github.com/seenimoa/marketpulse/internal/logging"
	"github.com/seenimoa/marketpulse/internal/market"
	"github.com/seenimoa/marketpulse/internal/metrics"
	"github.com/seenimoa/marketpulse/pkg/models"
)

// maxBodySize bounds request bodies.
const maxBodySize = 10 << 20

// pingTimeout bounds the provider check made by GET /health.
const pingTimeout = 10 * time.Second

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	market   *market.Service
	metrics  *metrics.Metrics
	provider llm.LLMProvider
	wsHub    *WSHub
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts the metrics handler when cfg.Metrics.Enabled is set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLLMProvider reports the extraction provider's reachability in
// GET /health.
func WithLLMProvider(p llm.LLMProvider) Option {
	return func(s *Server) { s.provider = p }
}

// WithLogger sets the logger used for access logs and handler errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a configured API server with all routes and middleware.
// Every snapshot published by svc is pushed to WebSocket clients.
func NewServer(cfg *config.Config, svc *market.Service, opts ...Option) *Server {
	srv := &Server{
		cfg:      cfg,
		market:   svc,
		wsHub:    NewWSHub(),
		validate: newValidator(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	svc.OnRefresh(func(snap *models.MarketSnapshot) {
		srv.wsHub.Broadcast(WSMessage{
			Type: "market_refreshed",
			Data: RefreshEvent{
				RunID:      snap.RunID,
				TotalScore: snap.TotalScore,
				Evaluation: snap.Verdict,
			},
		})
	})

	srv.router = srv.buildRouter()
	return srv
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe serves HTTP on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logging.StdLogger(s.logger, slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/market_data", s.handleMarketData)
	r.Post("/analyze_single_article", s.handleAnalyzeSingle)
	r.Get("/refresh_market_data", s.handleRefresh)
	r.Post("/refresh_market_data", s.handleRefresh)
	r.Get("/config", s.handleGetConfig)
	r.Get("/ws", s.handleWebSocket)

	if s.metrics != nil && s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.metrics.Handler())
	}

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is returned by GET /.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health. Status is "degraded" when the
// LLM provider does not answer.
type HealthResponse struct {
	Status          string     `json:"status"`
	ClassifierReady bool       `json:"classifier_ready"`
	RunID           string     `json:"run_id,omitempty"`
	LLM             *LLMStatus `json:"llm,omitempty"`
}

// LLMStatus is the result of pinging the extraction provider.
type LLMStatus struct {
	Provider  string `json:"provider"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// AnalyzeArticleRequest is the body for POST /analyze_single_article.
// article_id and title must be present but may be empty.
type AnalyzeArticleRequest struct {
	ArticleID *string `json:"article_id" validate:"required"`
	Title     *string `json:"title"      validate:"required"`
	Content   string  `json:"content"`
}

// RefreshResponse is returned by a successful refresh.
type RefreshResponse struct {
	Message    string         `json:"message"`
	TotalScore float64        `json:"total_score"`
	Evaluation models.Verdict `json:"evaluation"`
}

// RefreshEvent is the WebSocket payload pushed after every refresh.
type RefreshEvent struct {
	RunID      string         `json:"run_id"`
	TotalScore float64        `json:"total_score"`
	Evaluation models.Verdict `json:"evaluation"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Market sentiment API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		ClassifierReady: s.market.Ready(),
		RunID:           s.market.Snapshot().RunID,
	}
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		resp.LLM = &LLMStatus{Provider: s.provider.Name(), Reachable: true}
		if err := s.provider.Ping(ctx); err != nil {
			resp.LLM.Reachable = false
			resp.LLM.Error = err.Error()
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Snapshot())
}

func (s *Server) handleAnalyzeSingle(w http.ResponseWriter, r *http.Request) {
	if !s.market.Ready() {
		writeError(w, http.StatusServiceUnavailable, market.ErrNotReady.Error())
		return
	}

	var req AnalyzeArticleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	result, err := s.market.AnalyzeSingle(r.Context(), models.Article{
		ID:      *req.ArticleID,
		Title:   *req.Title,
		Content: req.Content,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.market.Refresh(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{
		Message:    "Market data refreshed",
		TotalScore: snap.TotalScore,
		Evaluation: snap.Verdict,
	})
}

// ============================================================
// Helpers
// ============================================================

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, market.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "missing required field(s): " + strings.Join(fields, ", ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
