package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/learntube/learntube/internal/metrics"
)

const (
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	geminiTimeout           = 30 * time.Second
	defaultRateLimitBackoff = 2 * time.Second
)

// DefaultGeminiModels is tried in order until one returns usable keywords.
var DefaultGeminiModels = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-2.5-flash",
	"gemini-flash-latest",
}

// GeminiClient generates search keywords through the Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	models     []string
	httpClient *http.Client
	backoff    time.Duration
}

// NewGeminiClient creates a client. An empty models list selects DefaultGeminiModels.
func NewGeminiClient(apiKey string, models []string) *GeminiClient {
	if len(models) == 0 {
		models = DefaultGeminiModels
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		models:     models,
		httpClient: &http.Client{Timeout: geminiTimeout},
		backoff:    defaultRateLimitBackoff,
	}
}

// NewGeminiClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewGeminiClientWithBaseURL(apiKey, baseURL string, models []string) *GeminiClient {
	c := NewGeminiClient(apiKey, models)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

// modelNotFoundError is returned on HTTP 404.
type modelNotFoundError struct {
	model string
}

func (e *modelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found", e.model)
}

// GenerateKeywords asks each model in turn for keywords covering categories.
// A rate-limited model costs a fixed backoff before the next one is tried.
// When no model produces a usable list the offline fallback is returned.
func (c *GeminiClient) GenerateKeywords(ctx context.Context, categories []string, learningContext string) []string {
	if c.apiKey == "" {
		slog.Warn("gemini API key missing, using fallback keywords")
		metrics.OracleFallbacks.WithLabelValues("keywords").Inc()
		return FallbackKeywords(categories)
	}

	prompt := keywordPrompt(categories, learningContext)
	for i, model := range c.models {
		text, err := c.generate(ctx, model, prompt)
		if err == nil {
			if raw, ok := ExtractJSONArray(text); ok {
				if kws := keywordsFromRaw(raw); len(kws) > 0 {
					metrics.OracleRequests.WithLabelValues("keywords", "ok").Inc()
					if len(kws) > requestedKeywords {
						kws = kws[:requestedKeywords]
					}
					return kws
				}
			}
			metrics.OracleRequests.WithLabelValues("keywords", "malformed").Inc()
			slog.Warn("gemini reply held no keyword array", "model", model)
			continue
		}

		var rl *rateLimitError
		var nf *modelNotFoundError
		switch {
		case errors.As(err, &rl):
			metrics.OracleRequests.WithLabelValues("keywords", "rate_limited").Inc()
			slog.Warn("gemini model rate limited", "model", model)
			if i < len(c.models)-1 {
				select {
				case <-ctx.Done():
					return FallbackKeywords(categories)
				case <-time.After(c.backoff):
				}
			}
		case errors.As(err, &nf):
			metrics.OracleRequests.WithLabelValues("keywords", "not_found").Inc()
			slog.Info("gemini model unavailable, trying next", "model", model)
		default:
			metrics.OracleRequests.WithLabelValues("keywords", "error").Inc()
			slog.Warn("gemini request failed", "model", model, "error", err)
		}
	}

	slog.Warn("all gemini models failed, using fallback keywords")
	metrics.OracleFallbacks.WithLabelValues("keywords").Inc()
	return FallbackKeywords(categories)
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", &rateLimitError{status: resp.StatusCode}
	case http.StatusNotFound:
		return "", &modelNotFoundError{model: model}
	default:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from %s", model)
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func keywordPrompt(categories []string, learningContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate exactly %d specific YouTube search keywords for learning content about: %s.\n",
		requestedKeywords, strings.Join(categories, ", "))
	if lc := strings.TrimSpace(learningContext); lc != "" {
		fmt.Fprintf(&sb, "The learner describes their goals as: %s\n", lc)
	}
	fmt.Fprintf(&sb, "Mix beginner and advanced topics, tools and frameworks. Each keyword must be at most %d characters.\n", MaxKeywordLength)
	sb.WriteString(`Respond with ONLY a JSON array of strings, for example ["react hooks", "css grid layout"].`)
	return sb.String()
}
