package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiDefaultModel is used when the configured model belongs to another provider.
const geminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider implements LLMProvider for Google's Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiOption configures the Gemini provider.
type GeminiOption func(*geminiSettings)

type geminiSettings struct {
	model  string
	client *http.Client
}

// WithGeminiModel sets the default model.
func WithGeminiModel(model string) GeminiOption {
	return func(s *geminiSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(s *geminiSettings) { s.client = client }
}

// NewGeminiProvider creates a Gemini provider backed by the Gemini API (not Vertex).
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	s := &geminiSettings{model: geminiDefaultModel}
	for _, opt := range opts {
		opt(s)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.client,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, model: s.model}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Ping verifies the API key by fetching the configured model.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return mapGeminiError(err)
	}
	return nil
}

// Chat calls GenerateContent. A ResponseFormat switches the reply to
// application/json constrained by the converted schema.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	model := p.model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	system, rest := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts != nil {
		config.Temperature = genai.Ptr(float32(opts.Temperature))
		if opts.MaxTokens > 0 {
			config.MaxOutputTokens = int32(opts.MaxTokens)
		}
		if opts.Format != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = toGenaiSchema(opts.Format.Schema)
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, mapGeminiError(err)
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	r := &Response{
		Content:      text,
		FinishReason: FinishStop,
		Model:        model,
		Provider:     ProviderGemini,
		Latency:      time.Since(start),
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		r.FinishReason = mapFinishReason(string(resp.Candidates[0].FinishReason))
	}
	if u := resp.UsageMetadata; u != nil {
		r.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return r, nil
}

// toGenaiSchema converts a JSONSchema into the OpenAPI subset Gemini accepts.
// additionalProperties has no Gemini equivalent and is dropped.
func toGenaiSchema(s *JSONSchema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	switch strings.ToLower(s.Type) {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
		// keep the declared order stable so the model emits required fields first
		out.PropertyOrdering = append([]string(nil), s.Required...)
	}
	out.Items = toGenaiSchema(s.Items)
	return out
}

func mapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	case strings.Contains(msg, "API_KEY_INVALID") || strings.Contains(msg, "PERMISSION_DENIED"):
		return fmt.Errorf("%w: %v", ErrNoAPIKey, err)
	case strings.Contains(msg, "NOT_FOUND"):
		return fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderDown, err)
}
