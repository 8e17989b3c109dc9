// Package classifier provides sentiment classifiers for article text. Every
// classifier answers with the same numeric codes: 0 positive, 1 negative,
// 2 neutral.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seenimoa/marketpulse/internal/config"
)

// Label codes returned by Classify.
const (
	CodePositive = 0
	CodeNegative = 1
	CodeNeutral  = 2
)

// Backend names for configuration.
const (
	BackendHTTP    = "http"
	BackendLexicon = "lexicon"
)

// ErrNotInitialized is returned by Classify before Init has succeeded.
var ErrNotInitialized = errors.New("classifier: not initialized")

// Classifier assigns a sentiment code to a piece of text.
type Classifier interface {
	// Name returns the backend identifier.
	Name() string

	// Init prepares the classifier (loads or probes the model). It must
	// succeed before Classify is used.
	Init(ctx context.Context) error

	// Classify returns the raw label code. Codes outside 0..2 are passed
	// through for the caller to treat as unrecognized.
	Classify(ctx context.Context, text string) (int, error)
}

// New builds the classifier selected by cfg.Backend.
func New(cfg config.ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	switch cfg.Backend {
	case BackendHTTP:
		return NewHTTPClassifier(cfg.URL,
			WithCallTimeout(cfg.CallTimeout),
			WithHTTPLogger(logger),
		), nil
	case BackendLexicon:
		return NewLexicon(), nil
	default:
		return nil, fmt.Errorf("classifier: unknown backend %q", cfg.Backend)
	}
}
