package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	DefaultChatBaseURL = "https://api.perplexity.ai"
	DefaultChatModel   = "sonar"

	chatTimeout      = 30 * time.Second
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

var (
	errMissingKey = errors.New("chat API key not configured")
	errEmptyReply = errors.New("empty completion")
)

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient sends chat completions to an OpenAI-compatible endpoint behind
// a circuit breaker, so a failing provider is skipped quickly instead of
// costing every caller a full timeout.
type ChatClient struct {
	client  *openai.Client
	model   string
	hasKey  bool
	breaker *gobreaker.CircuitBreaker[string]
}

// NewChatClient creates a client. Empty baseURL and model select the
// Perplexity defaults. A missing apiKey is allowed; every call then fails
// with errMissingKey and callers use their fallbacks.
func NewChatClient(apiKey, baseURL, model string) *ChatClient {
	if baseURL == "" {
		baseURL = DefaultChatBaseURL
	}
	if model == "" {
		model = DefaultChatModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: chatTimeout}

	return &ChatClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		hasKey: apiKey != "",
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "chat-completions",
			MaxRequests: 1,
			Timeout:     breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
			// Caller cancellation says nothing about provider health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// Complete returns the text of the first choice.
func (c *ChatClient) Complete(ctx context.Context, msgs []Message, temperature float32, maxTokens int) (string, error) {
	if !c.hasKey {
		return "", errMissingKey
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	return c.breaker.Execute(func() (string, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", errEmptyReply
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// httpStatus digs the provider status code out of a go-openai error, or 0.
func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
