package llm

import (
	"context"
	"sync"

	"vtuber/internal/events"
	"vtuber/internal/logging"
	"vtuber/internal/resilience"
)

// Client wraps a Backend with retries, a canned fallback, emotion
// classification and a rolling history of the last MaxHistory messages.
// The rolling history is call-shaping context only; the durable record is
// kept separately by the memory store.
type Client struct {
	backend Backend
	errs    *resilience.Handler
	bus     *events.Bus
	policy  resilience.RetryPolicy

	mu           sync.Mutex
	systemPrompt string
	temperature  float64
	topP         float64
	maxTokens    int
	history      []Message
}

// NewClient creates a client over backend. cfg supplies the sampling
// parameters and default system prompt; errs supplies the retry policy.
func NewClient(backend Backend, cfg Config, errs *resilience.Handler, bus *events.Bus) *Client {
	cfg = cfg.withDefaults()
	if errs == nil {
		errs = resilience.NewHandler()
	}
	logging.LLM("client ready: provider=%s model=%s", backend.Provider(), backend.Model())
	return &Client{
		backend:      backend,
		errs:         errs,
		bus:          bus,
		policy:       errs.Policy(),
		systemPrompt: cfg.SystemPrompt,
		temperature:  *cfg.Temperature,
		topP:         cfg.TopP,
		maxTokens:    cfg.MaxTokens,
	}
}

func (c *Client) Provider() Provider { return c.backend.Provider() }
func (c *Client) Model() string      { return c.backend.Model() }

// ApplyPersona replaces the default system prompt and sampling parameters.
// Temperature and top_p are always taken as given, zero included. An empty
// prompt or non-positive maxTokens keeps the current value.
func (c *Client) ApplyPersona(systemPrompt string, temperature, topP float64, maxTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if systemPrompt != "" {
		c.systemPrompt = systemPrompt
	}
	c.temperature = temperature
	c.topP = topP
	if maxTokens > 0 {
		c.maxTokens = maxTokens
	}
	logging.LLMDebug("persona applied: temperature=%.2f top_p=%.2f max_tokens=%d", c.temperature, c.topP, c.maxTokens)
}

// History returns a copy of the rolling window.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

// ClearHistory empties the rolling window.
func (c *Client) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	logging.LLM("conversation history cleared")
}

// Generate produces a reply to userMessage. It never fails: when the backend
// cannot produce a reply it publishes model_error and returns the canned
// fallback reply with UsedFallback set and the history untouched.
func (c *Client) Generate(ctx context.Context, userMessage string, opts GenerateOptions) Response {
	req := c.buildRequest(userMessage, opts)
	c.publish(ctx, events.KindModelRequest, map[string]any{
		"message":  userMessage,
		"provider": string(c.Provider()),
		"model":    c.Model(),
	})

	res := resilience.Execute(ctx, c.errs, resilience.KindModelAPIError, c.policy,
		func(ctx context.Context) (Completion, error) {
			return c.backend.Complete(ctx, req)
		},
		func(ctx context.Context) (Completion, error) {
			logging.LLMWarn("using fallback response (model unavailable)")
			return Completion{Text: FallbackReply}, nil
		})

	if res.Err != nil || res.UsedFallback {
		cause := res.Err
		if cause == nil {
			cause = res.LastErr
		}
		logging.LLMError("generation failed: %v", cause)
		c.publish(ctx, events.KindModelError, map[string]any{
			"error":         errString(cause),
			"message":       userMessage,
			"used_fallback": true,
		})
		return c.fallbackResponse()
	}

	out := Response{
		Response:   res.Value.Text,
		Emotion:    ClassifyEmotion(res.Value.Text),
		Model:      c.Model(),
		Provider:   c.Provider(),
		TokensUsed: res.Value.TotalTokens,
	}

	c.mu.Lock()
	c.history = append(c.history,
		Message{Role: RoleUser, Content: userMessage},
		Message{Role: RoleAssistant, Content: out.Response},
	)
	if over := len(c.history) - MaxHistory; over > 0 {
		c.history = append([]Message(nil), c.history[over:]...)
	}
	c.mu.Unlock()

	c.publish(ctx, events.KindModelResponse, out.Payload())
	return out
}

func (c *Client) buildRequest(userMessage string, opts GenerateOptions) CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = c.systemPrompt
	}
	msgs := make([]Message, 0, len(c.history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: prompt})
	if opts.IncludeHistory {
		msgs = append(msgs, c.history...)
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: userMessage})

	return CompletionRequest{
		Messages:    msgs,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
	}
}

func (c *Client) fallbackResponse() Response {
	return Response{
		Response:     FallbackReply,
		Emotion:      FallbackEmotion,
		Model:        c.Model(),
		Provider:     c.Provider(),
		UsedFallback: true,
	}
}

func (c *Client) publish(ctx context.Context, kind events.EventKind, payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, events.NewEvent(kind, payload, "llm_client"))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
