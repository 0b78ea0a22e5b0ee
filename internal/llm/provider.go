// Package llm talks to an OpenAI-compatible API for embeddings and chat
// completions.
package llm

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Config holds the OpenAI-compatible provider settings.
type Config struct {
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	// Temperature nil means DefaultTemperature; 0 is a valid setting.
	Temperature    *float64
	MaxTokens      int
	Timeout        time.Duration
}

// Provider builds the API client once, on first use, and shares it between
// the embedder and the completer.
type Provider struct {
	cfg    Config
	client func() (*openai.Client, error)
}

// NewProvider creates a provider. No network or validation happens until the
// first call.
func NewProvider(cfg Config) *Provider {
	p := &Provider{cfg: cfg}
	p.client = sync.OnceValues(p.build)
	return p
}

func (p *Provider) build() (*openai.Client, error) {
	opts := []option.RequestOption{
		// Retry policy belongs to the caller.
		option.WithMaxRetries(0),
	}
	if p.cfg.BaseURL != "" {
		if _, err := url.Parse(p.cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid llm base url: %w", err)
		}
		opts = append(opts, option.WithBaseURL(p.cfg.BaseURL))
	}
	if p.cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(p.cfg.APIKey))
	}
	if p.cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(p.cfg.Timeout))
	}

	client := openai.NewClient(opts...)
	return &client, nil
}

// Client returns the shared API client.
func (p *Provider) Client() (*openai.Client, error) {
	return p.client()
}

// describe renders a provider failure without leaking request bodies.
func describe(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Sprintf("status %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Sprintf("status %d", apiErr.StatusCode)
	}
	return "request failed"
}
