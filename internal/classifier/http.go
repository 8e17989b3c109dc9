package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// HTTPClassifier calls a model-serving endpoint that hosts the pretrained
// sentiment model.
//
//	GET  {url}/health   -> 200 once the model is loaded
//	POST {url}/predict  {"texts": ["..."]} -> {"predictions": [code]}
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	ready   atomic.Bool
	logger  *slog.Logger
}

// HTTPOption configures an HTTPClassifier.
type HTTPOption func(*HTTPClassifier)

// WithCallTimeout bounds each predict call.
func WithCallTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClassifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClassifier) { c.client = client }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClassifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPClassifier creates a client for the inference server at baseURL.
func NewHTTPClassifier(baseURL string, opts ...HTTPOption) *HTTPClassifier {
	c := &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: 60 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClassifier) Name() string { return BackendHTTP }

// Init probes the health endpoint. The caller bounds the wait through ctx.
func (c *HTTPClassifier) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("classifier: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classifier: health check: status %d", resp.StatusCode)
	}
	c.ready.Store(true)
	c.logger.Info("sentiment classifier ready", "url", c.baseURL)
	return nil
}

type predictRequest struct {
	Texts []string `json:"texts"`
}

type predictResponse struct {
	Predictions []int `json:"predictions"`
}

// Classify sends one text to the predict endpoint.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (int, error) {
	if !c.ready.Load() {
		return 0, ErrNotInitialized
	}

	data, err := json.Marshal(predictRequest{Texts: []string{text}})
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("classifier: predict: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("classifier: predict: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("classifier: decode prediction: %w", err)
	}
	if len(out.Predictions) != 1 {
		return 0, fmt.Errorf("classifier: expected 1 prediction, got %d", len(out.Predictions))
	}
	return out.Predictions[0], nil
}
