package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"startidy/internal/models"
)

// Completer is the capability the classifier and summarizer depend on: one
// prompt in, one text completion out. Satisfied by *Client in production and
// by fakes in tests.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client wraps an OpenAI-compatible chat completion endpoint with bounded
// exponential backoff on transient failures.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32

	// Backoff parameters, overridable in tests.
	initialBackoff time.Duration
	maxElapsed     time.Duration
}

func NewClient(baseURL, apiKey, model string, maxTokens int, temperature float32) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		maxTokens:      maxTokens,
		temperature:    temperature,
		initialBackoff: time.Second,
		maxElapsed:     30 * time.Second,
	}
}

// Complete sends one chat completion request. Rate limits, 5xx responses
// and network errors are retried with exponential backoff; auth and request
// shape errors fail immediately. Code fences around the response body are
// stripped so callers can parse structured output directly.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxElapsedTime = c.maxElapsed

	var out string
	err := backoff.Retry(func() error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no choices returned", models.ErrMalformedResponse))
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return backoff.Permanent(fmt.Errorf("%w: empty completion", models.ErrMalformedResponse))
		}
		out = stripCodeFences(content)
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", models.ErrRateLimited, err)
		}
		return "", err
	}
	return out, nil
}

// isTransient reports whether a completion error is worth retrying.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Network-level errors (timeouts, resets) come through untyped.
	return true
}

// stripCodeFences removes markdown code fences that some models wrap around
// structured output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i != -1 {
			s = s[i+1:]
		}
		if i := strings.LastIndex(s, "```"); i != -1 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
