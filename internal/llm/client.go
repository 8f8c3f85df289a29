// Package llm drafts lesson content through an OpenAI-compatible chat
// completion endpoint.
package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Be1newinner/asaan-hai-coding/internal/config"
)

// Temperature keeps drafts close to the prompt.
const Temperature = 0.2

// Completion is the text and token usage of one call.
type Completion struct {
	Model            string
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Completer sends a single prompt to a model.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error)
}

// ErrNoAPIKey is returned when neither the request nor the configuration
// supplies a key.
var ErrNoAPIKey = errors.New("llm: api key is not configured")

// OpenAIClient talks to one model with one key.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

// NewOpenAIClient points go-openai at baseURL. An empty baseURL keeps the
// library default.
func NewOpenAIClient(baseURL string, k Key) *OpenAIClient {
	cfg := openai.DefaultConfig(k.APIKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg), model: k.Model}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("llm: response has no choices")
	}
	return Completion{
		Model:            c.model,
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Factory builds a completer for a key.
type Factory func(baseURL string, k Key) Completer

// Generator resolves per-request credentials to cached clients.
type Generator struct {
	cache     *Cache
	baseURL   string
	defaults  Key
	maxTokens int
	factory   Factory
}

// NewGenerator wires the configured defaults. factory may be nil.
func NewGenerator(cfg config.LLMConfig, cache *Cache, factory Factory) *Generator {
	if cache == nil {
		cache = NewCache(cfg.CacheSize, cfg.CacheTTL)
	}
	if factory == nil {
		factory = func(baseURL string, k Key) Completer { return NewOpenAIClient(baseURL, k) }
	}
	return &Generator{
		cache:     cache,
		baseURL:   cfg.BaseURL,
		defaults:  Key{APIKey: cfg.APIKey, Model: cfg.Model},
		maxTokens: cfg.MaxTokens,
		factory:   factory,
	}
}

// Resolve fills blank fields of override from the configuration.
func (g *Generator) Resolve(override Key) Key {
	k := Key{APIKey: strings.TrimSpace(override.APIKey), Model: strings.TrimSpace(override.Model)}
	if k.APIKey == "" {
		k.APIKey = g.defaults.APIKey
	}
	if k.Model == "" {
		k.Model = g.defaults.Model
	}
	return k
}

// Generate runs prompt against the model selected by override. Failures are
// returned as *UpstreamError.
func (g *Generator) Generate(ctx context.Context, prompt string, override Key) (Completion, error) {
	k := g.Resolve(override)
	if k.APIKey == "" {
		return Completion{}, Classify(ErrNoAPIKey)
	}
	client, ok := g.cache.Get(k)
	if !ok {
		client = g.factory(g.baseURL, k)
		g.cache.Put(k, client)
	}
	out, err := client.Complete(ctx, prompt, g.maxTokens)
	if err != nil {
		return Completion{}, Classify(err)
	}
	return out, nil
}
