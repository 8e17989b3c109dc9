package api

import (
	"net/http"

	"github.com/seenimoa/marketpulse/internal/config"
)

// ConfigResponse is the redacted running configuration returned by GET /config.
// API keys are reported only as masked status entries.
type ConfigResponse struct {
	LLMProvider string                  `json:"llm_provider"`
	LLMModel    string                  `json:"llm_model"`
	Extraction  config.ExtractionConfig `json:"extraction"`
	Classifier  config.ClassifierConfig `json:"classifier"`
	Pipeline    config.PipelineConfig   `json:"pipeline"`
	Data        config.DataConfig       `json:"data"`
	Keys        []config.KeyStatus      `json:"keys"`
}

// handleGetConfig returns the running configuration without secrets.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{
		LLMProvider: s.cfg.LLM.Primary,
		LLMModel:    s.cfg.LLM.Model,
		Extraction:  s.cfg.Extraction,
		Classifier:  s.cfg.Classifier,
		Pipeline:    s.cfg.Pipeline,
		Data:        s.cfg.Data,
		Keys:        config.CheckAPIKeys(s.cfg),
	})
}
