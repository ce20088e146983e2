package adapters_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/services/llm/adapters"
)

// capture records the last request body and headers seen by the test server.
type capture struct {
	body    map[string]interface{}
	headers http.Header
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &c.body)
		c.headers = r.Header.Clone()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func request(endpoint string) *adapters.Request {
	return &adapters.Request{
		Endpoint:      endpoint,
		APIKey:        "sk-test",
		Model:         "m1",
		Prompt:        "Say hi",
		SystemMessage: "Be brief",
		Temperature:   0.2,
		MaxTokens:     64,
	}
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		name     string
		provider models.Provider
		expected adapters.Kind
	}{
		{"explicit type", models.Provider{Name: "whatever", Type: models.ProviderTypeAnthropic}, adapters.KindAnthropic},
		{"derived from name", models.Provider{Name: "OpenAI"}, adapters.KindOpenAI},
		{"unknown name", models.Provider{Name: "my-local-llm"}, adapters.KindGeneric},
		{"unknown type", models.Provider{Name: "x", Type: "mystery"}, adapters.KindGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapters.KindFor(&tt.provider))
		})
	}
}

func TestChatAdapter_Complete(t *testing.T) {
	// Arrange
	srv, seen := newServer(t, http.StatusOK, `{"choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":7,"completion_tokens":1,"total_tokens":8}}`)
	adapter := adapters.New(adapters.KindOpenAI, srv.Client())

	// Act
	completion, err := adapter.Complete(context.Background(), request(srv.URL))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "hi", completion.Content)
	assert.Equal(t, adapters.Usage{PromptTokens: 7, CompletionTokens: 1, TotalTokens: 8}, completion.Usage)
	assert.Equal(t, "Bearer sk-test", seen.headers.Get("Authorization"))
	assert.Equal(t, "m1", seen.body["model"])
	assert.EqualValues(t, 64, seen.body["max_tokens"])
	messages := seen.body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestAnthropicAdapter_Complete(t *testing.T) {
	// Arrange
	srv, seen := newServer(t, http.StatusOK, `{"content":[{"type":"text","text":"hello"}],"usage":{"input_tokens":5,"output_tokens":2}}`)
	adapter := adapters.New(adapters.KindAnthropic, srv.Client())

	// Act
	completion, err := adapter.Complete(context.Background(), request(srv.URL))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "hello", completion.Content)
	assert.Equal(t, 7, completion.Usage.TotalTokens)
	assert.Equal(t, "sk-test", seen.headers.Get("x-api-key"))
	assert.Equal(t, adapters.AnthropicVersion, seen.headers.Get("anthropic-version"))
	assert.Equal(t, "Be brief", seen.body["system"])
	assert.Len(t, seen.body["messages"], 1)
}

func TestHuggingFaceAdapter_EstimatesUsage(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK, `[{"generated_text":"12345678"}]`)
	adapter := adapters.New(adapters.KindHuggingFace, srv.Client())

	completion, err := adapter.Complete(context.Background(), request(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, "12345678", completion.Content)
	assert.Equal(t, 2, completion.Usage.CompletionTokens)
	// "Be brief\n\nSay hi" is 16 characters.
	assert.Equal(t, 4, completion.Usage.PromptTokens)
	assert.Equal(t, "Be brief\n\nSay hi", seen.body["inputs"])
	params := seen.body["parameters"].(map[string]interface{})
	assert.EqualValues(t, 64, params["max_new_tokens"])
}

func TestGenericAdapter_ProbesResponseShapes(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
		usage    adapters.Usage
	}{
		{
			name:     "chat shape with usage",
			response: `{"choices":[{"message":{"content":"chat"}}],"usage":{"input_tokens":3,"output_tokens":4}}`,
			expected: "chat",
			usage:    adapters.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
		},
		{
			name:     "completion shape",
			response: `{"choices":[{"text":"completion"}]}`,
			expected: "completion",
			usage:    adapters.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
		},
		{
			name:     "content field",
			response: `{"content":"direct"}`,
			expected: "direct",
			usage:    adapters.Usage{PromptTokens: 2, CompletionTokens: 2, TotalTokens: 4},
		},
		{
			name:     "generated_text field",
			response: `{"generated_text":"gen"}`,
			expected: "gen",
			usage:    adapters.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3},
		},
		{
			name:     "raw body",
			response: `plain text answer`,
			expected: "plain text answer",
			usage:    adapters.Usage{PromptTokens: 2, CompletionTokens: 5, TotalTokens: 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, tt.response)
			adapter := adapters.New(adapters.Kind("unknown"), srv.Client())

			completion, err := adapter.Complete(context.Background(), request(srv.URL))

			require.NoError(t, err)
			assert.Equal(t, adapters.KindGeneric, adapter.Kind())
			assert.Equal(t, tt.expected, completion.Content)
			assert.Equal(t, tt.usage, completion.Usage)
		})
	}
}

func TestAdapters_NonSuccessStatusIsUpstreamError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, `{"error":"down"}`)
	set := adapters.NewSet(srv.Client())

	for _, kind := range []adapters.Kind{adapters.KindOpenAI, adapters.KindAnthropic, adapters.KindHuggingFace, adapters.KindGeneric} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := set.For(kind).Complete(context.Background(), request(srv.URL))

			assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeUpstream), "got %v", err)
			assert.True(t, domainerrors.IsFallbackEligible(err))
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, adapters.EstimateTokens(""))
	assert.Equal(t, 1, adapters.EstimateTokens("abc"))
	assert.Equal(t, 2, adapters.EstimateTokens("abcde"))
}
