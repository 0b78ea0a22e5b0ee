package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(Config{
		BaseURL: srv.URL + "/v1/",
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func TestEmbedder_Embed(t *testing.T) {
	var gotBody map[string]any
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	})

	e := NewEmbedder(provider, 0, 0)
	vec, err := e.Embed(context.Background(), "A cat sat.")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "A cat sat.", gotBody["input"])
	assert.Equal(t, DefaultEmbeddingModel, gotBody["model"])
}

func TestEmbedder_ServiceError(t *testing.T) {
	var calls atomic.Int32
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
	})

	_, err := NewEmbedder(provider, 0, 0).Embed(context.Background(), "text")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, int32(1), calls.Load(), "no retries inside the client")
}

func TestEmbedder_EmptyResponse(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[],"usage":{"prompt_tokens":0,"total_tokens":0}}`))
	})

	_, err := NewEmbedder(provider, 0, 0).Embed(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestProvider_BuildsClientOnce(t *testing.T) {
	p := NewProvider(Config{BaseURL: "http://127.0.0.1:1/v1/"})

	first, err := p.Client()
	require.NoError(t, err)
	second, err := p.Client()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCompleter_Complete(t *testing.T) {
	var gotBody struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4-turbo-preview",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there"}}]}`))
	})

	text, err := NewCompleter(provider).Complete(context.Background(), []domain.PromptMessage{
		{Role: domain.RoleSystem, Content: "You are a helpful AI assistant."},
		{Role: domain.RoleUser, Content: "Hello"},
		{Role: domain.RoleAssistant, Content: "Hi"},
		{Role: domain.RoleUser, Content: "Again"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, DefaultChatModel, gotBody.Model)
	assert.InDelta(t, 0.7, gotBody.Temperature, 1e-9)
	assert.Equal(t, 1000, gotBody.MaxTokens)
	require.Len(t, gotBody.Messages, 4)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "assistant", gotBody.Messages[2].Role)
	assert.Equal(t, "Again", gotBody.Messages[3].Content)
}

func TestCompleter_ZeroTemperatureIsSent(t *testing.T) {
	var gotBody struct {
		Temperature *float64 `json:"temperature"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(srv.Close)

	zero := 0.0
	provider := NewProvider(Config{BaseURL: srv.URL + "/v1/", APIKey: "test-key", Temperature: &zero})
	_, err := NewCompleter(provider).Complete(context.Background(), []domain.PromptMessage{
		{Role: domain.RoleUser, Content: "Hello"},
	})

	require.NoError(t, err)
	require.NotNil(t, gotBody.Temperature)
	assert.Zero(t, *gotBody.Temperature)
}

func TestCompleter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusServiceUnavailable, `{"error":{"message":"overloaded","type":"server_error"}}`},
		{"no choices", http.StatusOK, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			})

			_, err := NewCompleter(provider).Complete(context.Background(), []domain.PromptMessage{
				{Role: domain.RoleUser, Content: "Hello"},
			})
			assert.ErrorIs(t, err, domain.ErrCompletionService)
		})
	}
}
