package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"vtuber/internal/resilience"
)

func TestChatBackendSuccess(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello there!"}}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	b := NewOpenAIBackend(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-test"})
	out, err := b.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Temperature: 0.5,
		MaxTokens:   100,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there!", out.Text)
	assert.Equal(t, 42, out.TotalTokens)
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	assert.Len(t, got.Messages, 2)
}

func TestChatBackendStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   resilience.ErrorKind
	}{
		{http.StatusTooManyRequests, resilience.KindModelRateLimit},
		{http.StatusInternalServerError, resilience.KindModelAPIError},
		{http.StatusUnauthorized, resilience.KindModelAPIError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))

		b := NewOpenAIBackend(Config{APIKey: "k", BaseURL: srv.URL})
		_, err := b.Complete(context.Background(), CompletionRequest{})
		require.Error(t, err)
		assert.Equal(t, tc.kind, resilience.KindOf(err), "status %d", tc.status)
		srv.Close()
	}
}

func TestChatBackendMissingTokensIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	b := NewOllamaBackend(Config{OllamaBaseURL: srv.URL})
	out, err := b.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.TotalTokens)
	assert.Equal(t, ProviderOllama, b.Provider())
	assert.Equal(t, DefaultOllamaModel, b.Model())
}

func TestOllamaUsesV1AndPlaceholderKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ollama", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaBackend(Config{OllamaBaseURL: srv.URL + "/"}).Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
}

func TestDegradedBackendsFailAtCallTime(t *testing.T) {
	openai, err := NewBackend(context.Background(), Config{Provider: ProviderOpenAI})
	require.NoError(t, err)
	_, err = openai.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	gemini, err := NewBackend(context.Background(), Config{Provider: ProviderGemini})
	require.NoError(t, err)
	assert.Equal(t, DefaultGeminiModel, gemini.Model())
	_, err = gemini.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, resilience.KindModelAPIError, resilience.KindOf(err))

	_, err = NewBackend(context.Background(), Config{Provider: "claude"})
	assert.Error(t, err)
}

func TestFlattenPrompt(t *testing.T) {
	got := FlattenPrompt([]Message{
		{Role: RoleSystem, Content: "You are Luna."},
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello!"},
		{Role: RoleUser, Content: "How are you?"},
	})
	assert.Equal(t, "You are Luna.\n\nUser: Hi\nAssistant: Hello!\nUser: How are you?\nAssistant:", got)
}

type fakeGenerator struct {
	prompt string
	cfg    *genai.GenerateContentConfig
	resp   *genai.GenerateContentResponse
	err    error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.prompt = contents[0].Parts[0].Text
	f.cfg = cfg
	return f.resp, f.err
}

func TestGeminiBackendComplete(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText("Wow, hi!", genai.RoleModel),
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 17},
	}}
	b := &GeminiBackend{model: "gemini-test", gen: gen}

	out, err := b.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		Temperature: 0.8,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "Wow, hi!", out.Text)
	assert.Equal(t, 17, out.TotalTokens)
	assert.Equal(t, "sys\n\nUser: hi\nAssistant:", gen.prompt)
	assert.Equal(t, int32(64), gen.cfg.MaxOutputTokens)
	assert.InDelta(t, 0.8, *gen.cfg.Temperature, 1e-6)
	assert.Nil(t, gen.cfg.TopP)
}

func TestGeminiBackendError(t *testing.T) {
	b := &GeminiBackend{model: "m", gen: &fakeGenerator{err: errors.New("quota")}}
	_, err := b.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestClassifyEmotion(t *testing.T) {
	cases := map[string]string{
		"That's awesome!":               EmotionHappy,
		"I'm not sure, maybe?":          EmotionConfused,
		"Unfortunately that failed.":    EmotionSad,
		"That is incredible.":           EmotionSurprised,
		"The sky is blue.":              EmotionNeutral,
		"Sorry, but wow that's great.":  EmotionHappy,
		"Hmm, sorry about that.":        EmotionSad,
		"WOW. Amazing.":                 EmotionSurprised,
		"Are you sure? That's amazing.": EmotionConfused,
	}
	for text, want := range cases {
		assert.Equal(t, want, ClassifyEmotion(text), text)
	}
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Gemini ")
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p)

	_, err = ParseProvider("anthropic")
	assert.Error(t, err)
}
