package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/sonarfix/internal/config"
	"github.com/lucasnoah/sonarfix/internal/fault"
)

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "bard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bard")
}

func TestNew_AnthropicRequiresKey(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-5"})
	require.Error(t, err)
}

func TestOpenAI_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "Kimi-K2",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"filePath\":\"a.go\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 5, "total_tokens": 8}
		}`)
	}))
	defer srv.Close()

	c, err := New(config.LLMConfig{
		Provider:    "openai",
		BaseURL:     srv.URL + "/v1",
		Model:       "Kimi-K2",
		Temperature: 0.3,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "be terse", "fix it")
	require.NoError(t, err)
	assert.Equal(t, `{"filePath":"a.go"}`, out)

	assert.Equal(t, "Kimi-K2", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAI_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c, err := NewOpenAI(config.LLMConfig{BaseURL: srv.URL + "/v1", Model: "m", Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", "x")
	require.Error(t, err)
	assert.Equal(t, fault.KindTransport, fault.KindOf(err))
}

func TestAnthropic_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "done"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 4, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	c, err := New(config.LLMConfig{
		Provider:  "anthropic",
		BaseURL:   srv.URL,
		Model:     "claude-sonnet-4-5",
		APIKey:    "test-key",
		MaxTokens: 512,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, "claude-sonnet-4-5", got["model"])
	assert.EqualValues(t, 512, got["max_tokens"])
	assert.NotNil(t, got["system"])
}
