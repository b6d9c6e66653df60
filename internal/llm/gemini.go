package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"vtuber/internal/logging"
	"vtuber/internal/resilience"
)

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend calls Google's generate-content API with the transcript
// flattened into a single prompt.
type GeminiBackend struct {
	model string
	gen   contentGenerator
}

// NewGeminiBackend creates a backend for cfg.APIKey. Without a key the
// backend is degraded and every call returns ErrNotConfigured.
func NewGeminiBackend(ctx context.Context, cfg Config) (*GeminiBackend, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderGemini
	}
	cfg = cfg.withDefaults()
	b := &GeminiBackend{model: cfg.Model}
	if cfg.APIKey == "" {
		logging.LLMWarn("[Gemini] no API key configured; calls will fail")
		return b, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			Timeout: &cfg.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	b.gen = client.Models
	return b, nil
}

func (g *GeminiBackend) Provider() Provider { return ProviderGemini }
func (g *GeminiBackend) Model() string      { return g.model }

// FlattenPrompt renders a transcript as the system text, a blank line, one
// "User: ..." or "Assistant: ..." line per turn, and a trailing "Assistant:".
// The final message is expected to be the pending user turn.
func FlattenPrompt(messages []Message) string {
	var sb strings.Builder
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		case RoleUser:
			sb.WriteString("User: ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		default:
			sb.WriteString("Assistant: ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
		if i == len(messages)-1 {
			sb.WriteString("Assistant:")
		}
	}
	return sb.String()
}

// Complete performs one generate-content call.
func (g *GeminiBackend) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if g.gen == nil {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, ErrNotConfigured)
	}

	start := time.Now()
	prompt := FlattenPrompt(req.Messages)
	logging.LLMDebug("[Gemini] Complete: model=%s prompt_len=%d", g.model, len(prompt))

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}

	resp, err := g.gen.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, fmt.Errorf("GenAI generate failed: %w", err))
	}

	text := resp.Text()
	if text == "" {
		return Completion{}, resilience.NewFailure(resilience.KindModelAPIError, fmt.Errorf("no completion returned"))
	}
	out := Completion{Text: text}
	if resp.UsageMetadata != nil {
		out.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	logging.LLM("[Gemini] Complete: completed in %v tokens=%d", time.Since(start), out.TotalTokens)
	return out, nil
}
