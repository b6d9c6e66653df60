// Package companion wires the event bus subscriptions between the memory
// store, persona engine, language-model client and speech output.
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"vtuber/internal/events"
	"vtuber/internal/llm"
	"vtuber/internal/logging"
	"vtuber/internal/memory"
	"vtuber/internal/persona"
	"vtuber/internal/resilience"
	"vtuber/internal/tts"
)

// ErrEmptyInput is returned by HandleText for blank input.
var ErrEmptyInput = errors.New("companion: empty input")

// Deps are the components a Companion coordinates. Speaker may be nil.
type Deps struct {
	Bus      *events.Bus
	Errors   *resilience.Handler
	Memory   *memory.Store
	Personas *persona.Engine
	LLM      *llm.Client
	Speaker  tts.Speaker
}

type registration struct {
	kind events.EventKind
	id   events.SubscriptionID
}

// Companion is one running conversation session.
type Companion struct {
	deps Deps

	mu   sync.Mutex
	subs []registration
}

// New subscribes the companion's handlers on deps.Bus.
func New(deps Deps) (*Companion, error) {
	if deps.Bus == nil || deps.Memory == nil || deps.Personas == nil || deps.LLM == nil {
		return nil, fmt.Errorf("companion: bus, memory, personas and llm are required")
	}
	if deps.Errors == nil {
		deps.Errors = resilience.NewHandler()
	}
	c := &Companion{deps: deps}

	c.subscribe(events.KindPersonaLoaded, c.onPersonaLoaded)
	c.subscribeContext(events.KindModelResponse, c.onModelResponse)
	c.subscribe(events.KindSystemError, c.onSystemError)
	return c, nil
}

func (c *Companion) subscribe(kind events.EventKind, h events.Handler) {
	id := c.deps.Bus.Subscribe(kind, h)
	c.mu.Lock()
	c.subs = append(c.subs, registration{kind: kind, id: id})
	c.mu.Unlock()
}

func (c *Companion) subscribeContext(kind events.EventKind, h events.ContextHandler) {
	id := c.deps.Bus.SubscribeContext(kind, h)
	c.mu.Lock()
	c.subs = append(c.subs, registration{kind: kind, id: id})
	c.mu.Unlock()
}

// Start restores persisted memory and announces readiness. A memory load
// failure is returned but the companion remains usable.
func (c *Companion) Start(ctx context.Context) error {
	loadErr := c.deps.Memory.Load(ctx)
	if loadErr != nil {
		logging.CompanionWarn("starting with empty memory: %v", loadErr)
	}

	payload := map[string]any{
		"provider": string(c.deps.LLM.Provider()),
		"model":    c.deps.LLM.Model(),
		"memories": c.deps.Memory.Len(),
	}
	if p, ok := c.deps.Personas.Active(); ok {
		payload["persona"] = p.Name
	}
	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindSystemReady, payload, "companion"))
	logging.Companion("ready: provider=%s model=%s", c.deps.LLM.Provider(), c.deps.LLM.Model())
	return loadErr
}

// HandleText runs one conversational turn. The returned emotion is already
// mapped through the active persona.
func (c *Companion) HandleText(ctx context.Context, text string) (llm.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return llm.Response{}, ErrEmptyInput
	}

	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindUserTextInput, map[string]any{"text": text}, "companion"))
	c.remember(ctx, memory.RoleUser, text, map[string]any{"input": "text"})

	opts := llm.GenerateOptions{IncludeHistory: true}
	if p, ok := c.deps.Personas.Active(); ok {
		opts.SystemPrompt = p.SystemPrompt
	}
	resp := c.deps.LLM.Generate(ctx, text, opts)

	c.remember(ctx, memory.RoleAssistant, resp.Response, map[string]any{
		"emotion":       resp.Emotion,
		"used_fallback": resp.UsedFallback,
	})

	if resp.UsedFallback {
		// model_response is not published for fallbacks; present the reply here.
		if err := c.present(ctx, resp.Response, resp.Emotion); err != nil {
			logging.CompanionWarn("presenting fallback reply: %v", err)
		}
	}
	resp.Emotion = c.deps.Personas.MapEmotion(resp.Emotion)
	return resp, nil
}

func (c *Companion) remember(ctx context.Context, role memory.Role, content string, metadata map[string]any) {
	if _, err := c.deps.Memory.Append(role, content, metadata); err != nil {
		logging.CompanionError("failed to remember %s turn: %v", role, err)
		return
	}
	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindMemoryStore, map[string]any{
		"role":    string(role),
		"content": content,
	}, "companion"))
}

// Shutdown persists memory, announces shutdown and detaches from the bus.
func (c *Companion) Shutdown(ctx context.Context) error {
	err := c.deps.Memory.Persist(ctx)
	if err != nil {
		logging.CompanionError("failed to persist memory on shutdown: %v", err)
	}
	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindSystemShutdown, map[string]any{
		"farewell": c.deps.Personas.Farewell(),
	}, "companion"))

	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		c.deps.Bus.Unsubscribe(s.kind, s.id)
	}
	logging.Companion("shut down")
	return err
}

func (c *Companion) onPersonaLoaded(ev events.Event) error {
	temperature, _ := ev.Payload["temperature"].(float64)
	topP, _ := ev.Payload["top_p"].(float64)
	maxTokens, _ := ev.Payload["max_tokens"].(int)
	c.deps.LLM.ApplyPersona(ev.Str("system_prompt"), temperature, topP, maxTokens)
	logging.CompanionDebug("applied persona %s to llm client", ev.Str("persona_name"))
	return nil
}

func (c *Companion) onModelResponse(ctx context.Context, ev events.Event) error {
	return c.present(ctx, ev.Str("response"), ev.Str("emotion"))
}

// present publishes the persona-mapped emotion and the text, then speaks it.
func (c *Companion) present(ctx context.Context, text, emotion string) error {
	mapped := c.deps.Personas.MapEmotion(emotion)
	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindEmotionOutput, map[string]any{
		"emotion":     mapped,
		"raw_emotion": emotion,
	}, "companion"))
	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindTextOutput, map[string]any{"text": text}, "companion"))

	if c.deps.Speaker == nil {
		return nil
	}
	err := c.deps.Errors.Run(ctx, resilience.KindSynthesisFailed, func(ctx context.Context) error {
		return c.deps.Speaker.Speak(ctx, text)
	})
	payload := map[string]any{"ok": err == nil}
	if err != nil {
		payload["error"] = err.Error()
	}
	c.deps.Bus.Publish(ctx, events.NewEvent(events.KindVoiceOutput, payload, "companion"))
	return err
}

func (c *Companion) onSystemError(ev events.Event) error {
	logging.CompanionError("system error from %s: %s", ev.Str("original_event"), ev.Str("error"))
	return nil
}
