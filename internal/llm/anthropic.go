package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicDefaultModel is used when the configured model belongs to another provider.
const anthropicDefaultModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements LLMProvider on top of the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// AnthropicOption configures the Anthropic provider.
type AnthropicOption func(*anthropicSettings)

type anthropicSettings struct {
	model   string
	baseURL string
	client  *http.Client
}

// WithAnthropicModel sets the default model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(s *anthropicSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithAnthropicBaseURL sets a custom base URL.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(s *anthropicSettings) { s.baseURL = strings.TrimRight(url, "/") }
}

// WithAnthropicHTTPClient sets a custom HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(s *anthropicSettings) { s.client = client }
}

// NewAnthropicProvider creates an Anthropic provider. Retries are disabled:
// a failed extraction is absorbed by the caller rather than retried.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	s := &anthropicSettings{model: anthropicDefaultModel}
	for _, opt := range opts {
		opt(s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.client != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(s.client))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(reqOpts...),
		model:  s.model,
	}, nil
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Ping sends a one-token request; the API has no cheaper authenticated probe.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("hi"))},
	})
	return mapAnthropicError(err)
}

// Chat sends a messages request. The API has no schema-constrained output, so
// a ResponseFormat is appended to the system prompt as an instruction.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	params := p.buildParams(messages, opts)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content:      text.String(),
		FinishReason: mapFinishReason(string(resp.StopReason)),
		Model:        string(params.Model),
		Provider:     ProviderAnthropic,
		Latency:      time.Since(start),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

func (p *AnthropicProvider) buildParams(messages []Message, opts *ChatOptions) anthropic.MessageNewParams {
	model := p.model
	maxTokens := 2048
	system, rest := splitSystem(messages)

	params := anthropic.MessageNewParams{}
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		params.Temperature = anthropic.Float(opts.Temperature)
		if opts.Format != nil {
			system = appendSchemaInstruction(system, opts.Format)
		}
	}
	params.Model = anthropic.Model(model)
	params.MaxTokens = int64(maxTokens)

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	return params
}

// appendSchemaInstruction tells the model to answer with a bare JSON object
// matching format.
func appendSchemaInstruction(system string, format *ResponseFormat) string {
	var b strings.Builder
	b.WriteString(system)
	if system != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object and nothing else. It must match this JSON Schema:\n")
	b.WriteString(format.Schema.String())
	return b.String()
}

func mapAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrNoAPIKey, err)
		case http.StatusTooManyRequests, 529:
			return fmt.Errorf("%w: %v", ErrRateLimit, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
		if apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrProviderDown, err)
		}
		return fmt.Errorf("anthropic: %w", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderDown, err)
}
