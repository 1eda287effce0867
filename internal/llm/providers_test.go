package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaBackend_GetResponse(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"market is large"},"done":true}`))
	}))
	defer srv.Close()

	temp := 0.2
	b := NewOllamaBackend(BackendOptions{Name: "local", Model: "llama3", BaseURL: srv.URL + "/", Temperature: &temp}, silentLog())
	out, err := b.GetResponse(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "size the market"},
	})
	require.NoError(t, err)
	assert.Equal(t, "market is large", out)
	assert.Equal(t, "local", b.Name())

	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	require.NotNil(t, got.Options)
	assert.InDelta(t, 0.2, *got.Options.Temperature, 1e-9)
}

func TestOllamaBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"server busy"}`))
	}))
	defer srv.Close()

	b := NewOllamaBackend(BackendOptions{Name: "local", Model: "llama3", BaseURL: srv.URL}, silentLog())
	_, err := b.GetResponse(context.Background(), []Message{{Role: RoleUser, Content: "x"}})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.Code)
	assert.Equal(t, "server busy", pe.Message)
	assert.True(t, IsRateLimit(err))
}

func TestOllamaBackend_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}`))
	}))
	defer srv.Close()

	b := NewOllamaBackend(BackendOptions{Name: "local", Model: "llama3", BaseURL: srv.URL}, silentLog())
	_, err := b.GetResponse(context.Background(), nil)
	assert.Error(t, err)
}

func TestOllamaBackend_DefaultBaseURL(t *testing.T) {
	b := NewOllamaBackend(BackendOptions{Name: "local"}, silentLog())
	assert.Equal(t, "http://localhost:11434", b.baseURL)
}

func TestOpenAIBackend_GetResponse(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "rivals: Globex"}}]
		}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(BackendOptions{Name: "deepseek", Model: "deepseek-chat", BaseURL: srv.URL + "/", APIKey: "sk-test", MaxTokens: 100}, silentLog())
	require.NoError(t, err)

	out, err := b.GetResponse(context.Background(), []Message{
		{Role: RoleSystem, Content: "analyst"},
		{Role: RoleUser, Content: "who competes with Acme"},
		{Role: RoleAssistant, Content: "let me check"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rivals: Globex", out)

	assert.Equal(t, "deepseek-chat", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3)
}

func TestOpenAIBackend_RateLimitStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(BackendOptions{Name: "chatgpt", Model: "gpt-4o", BaseURL: srv.URL + "/", APIKey: "sk-test"}, silentLog())
	require.NoError(t, err)

	_, err = b.GetResponse(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.Code)
	assert.True(t, IsRateLimit(err))
	assert.Equal(t, 1, calls, "SDK retries must be disabled")
}

func TestNewOpenAIBackend_RequiresKey(t *testing.T) {
	_, err := NewOpenAIBackend(BackendOptions{Name: "chatgpt"}, silentLog())
	assert.Error(t, err)
}

func TestNewAnthropicBackend_RequiresKey(t *testing.T) {
	_, err := NewAnthropicBackend(BackendOptions{Name: "claude"}, silentLog())
	assert.Error(t, err)
}

func TestNewGeminiBackend_RequiresKey(t *testing.T) {
	_, err := NewGeminiBackend(context.Background(), BackendOptions{Name: "gemini"}, silentLog())
	assert.Error(t, err)
}

func TestToOpenAIMessages(t *testing.T) {
	out := toOpenAIMessages([]Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.Len(t, out, 3)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
}

func TestToAnthropicMessages_DropsLeadingAssistant(t *testing.T) {
	out := toAnthropicMessages([]Message{
		{Role: RoleAssistant, Content: "stray"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "user", string(out[0].Role))
	assert.Equal(t, "assistant", string(out[1].Role))
}

func TestToGeminiContents(t *testing.T) {
	out := toGeminiContents([]Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "model", out[1].Role)
	assert.Equal(t, "a", out[1].Parts[0].Text)
}

func TestClassifyGeminiError(t *testing.T) {
	err := classifyGeminiError("gemini", assert.AnError)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Code)

	err = classifyGeminiError("gemini", &ProviderError{Message: "Error 429, Message: quota, Status: RESOURCE_EXHAUSTED"})
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.Code)
}
