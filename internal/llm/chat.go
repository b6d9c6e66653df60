package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vtuber/internal/logging"
	"vtuber/internal/resilience"
)

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p,omitempty"`
}

// chatResponse is the subset of the OpenAI-compatible response we read.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ChatBackend talks to an OpenAI-compatible /chat/completions endpoint.
// OpenAI and Ollama share it, differing only in base URL and key.
type ChatBackend struct {
	provider   Provider
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIBackend targets cfg.BaseURL with a bearer key. Without a key the
// backend is degraded and every call returns ErrNotConfigured.
func NewOpenAIBackend(cfg Config) *ChatBackend {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		logging.LLMWarn("[OpenAI] no API key configured; calls will fail")
	}
	return &ChatBackend{
		provider:   ProviderOpenAI,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewOllamaBackend targets cfg.OllamaBaseURL + "/v1" with the placeholder key.
func NewOllamaBackend(cfg Config) *ChatBackend {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOllama
	}
	cfg = cfg.withDefaults()
	return &ChatBackend{
		provider:   ProviderOllama,
		apiKey:     "ollama",
		baseURL:    strings.TrimRight(cfg.OllamaBaseURL, "/") + "/v1",
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ChatBackend) Provider() Provider { return c.provider }
func (c *ChatBackend) Model() string      { return c.model }

// Complete performs one chat completion call. HTTP 429 is tagged
// model_rate_limit and other non-200 statuses model_api_error.
func (c *ChatBackend) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, ErrNotConfigured)
	}

	start := time.Now()
	logging.LLMDebug("[%s] Complete: model=%s messages=%d", c.provider, c.model, len(req.Messages))

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, resilience.NewFailure(resilience.KindNetworkError, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, resilience.NewFailure(resilience.KindNetworkError, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Completion{}, resilience.NewFailure(resilience.KindModelRateLimit, fmt.Errorf("rate limit exceeded (429)"))
	}
	if resp.StatusCode != http.StatusOK {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError,
			fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Error != nil {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, fmt.Errorf("API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, fmt.Errorf("no completion returned"))
	}

	out := Completion{Text: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		out.TotalTokens = parsed.Usage.TotalTokens
	}
	logging.LLM("[%s] Complete: completed in %v tokens=%d", c.provider, time.Since(start), out.TotalTokens)
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
