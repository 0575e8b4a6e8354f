// Package llm sends single-turn completion requests to a language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/lucasnoah/sonarfix/internal/config"
	"github.com/lucasnoah/sonarfix/internal/fault"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// New builds the Completer selected by cfg.Provider.
func New(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg)
	case "anthropic":
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewOpenAI creates an OpenAI-compatible completer.
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	token := cfg.APIKey
	if token == "" {
		// Local gateways accept any token but the client requires one.
		token = "placeholder"
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAI{
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete implements Completer.
func (c *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var msgs []llms.MessageContent
	if system != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.maxTokens))
	}
	resp, err := c.model.GenerateContent(ctx, msgs, callOpts...)
	if err != nil {
		return "", fault.Transport("llm complete", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fault.Transport("llm complete", ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

// NewAnthropic creates an Anthropic completer.
func NewAnthropic(cfg config.LLMConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider requires llm.api_key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     cfg.Timeout,
	}, nil
}

// Complete implements Completer.
func (c *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fault.Transport("llm complete", err)
	}
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fault.Transport("llm complete", ErrEmptyResponse)
	}
	return sb.String(), nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
