package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/socialchef/ttlcache/internal/errors"
	"github.com/socialchef/ttlcache/internal/httpclient"
	"github.com/socialchef/ttlcache/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) callChat(ctx context.Context, systemPrompt, userContent string) (string, error) {
	ctx, span := telemetry.Tracer("openai").Start(ctx, "openai.chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("model", c.model))

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(httpclient.WithUpstream(ctx, "OpenAI"), http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperrors.NewUpstreamError("OpenAI request failed", "UPSTREAM_UNAVAILABLE", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.NewRateLimitError("OpenAI rate limit exceeded", "UPSTREAM_RATE_LIMITED", "Wait a moment before sending another prompt.")
	case resp.StatusCode >= 400:
		return "", apperrors.NewUpstreamError("OpenAI API error", "UPSTREAM_ERROR", resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrNoResponse
	}

	return chatResp.Choices[0].Message.Content, nil
}
