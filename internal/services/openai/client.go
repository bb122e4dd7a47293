package openai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/socialchef/ttlcache/internal/httpclient"
	"github.com/socialchef/ttlcache/internal/utils"
)

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultSystemPrompt = "You are a helpful assistant."

	// NotConfiguredReply is returned instead of calling the API when no key is set.
	NotConfiguredReply = "Error: API Key not configured"
)

var ErrNoResponse = errors.New("no response from OpenAI")

// Client is a minimal chat-completion client for OpenAI-compatible APIs.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	retry   utils.RetryConfig
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRetryConfig replaces the default retry policy.
func WithRetryConfig(cfg utils.RetryConfig) Option {
	return func(cl *Client) { cl.retry = cfg }
}

func NewClient(apiKey, baseURL, model string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		http:    httpclient.NewInstrumentedClient(120 * time.Second),
		retry:   utils.UpstreamRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletion sends a single system+user exchange and returns the
// assistant's reply. An empty systemPrompt uses DefaultSystemPrompt.
func (c *Client) ChatCompletion(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if c.apiKey == "" {
		slog.WarnContext(ctx, "OpenAI API key not configured")
		return NotConfiguredReply, nil
	}
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	content, err := utils.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return c.callChat(ctx, systemPrompt, prompt)
	}, c.retry)
	if err != nil {
		slog.ErrorContext(ctx, "OpenAI chat completion failed", "model", c.model, "error", err)
		return "", err
	}
	return content, nil
}
