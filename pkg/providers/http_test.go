package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatClientComplete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "  hello world  "}}]}`))
	}))
	defer server.Close()

	client := NewChatClient("sk-test", server.URL, time.Second)
	out, err := client.Complete(context.Background(), "gpt-4o-mini", []ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, 100, 0.2)
	require.NoError(t, err)

	assert.Equal(t, "hello world", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	assert.Equal(t, float64(100), gotBody["max_tokens"])
}

func TestChatClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	client := NewChatClient("sk-test", server.URL, time.Second)
	_, err := client.Complete(context.Background(), "m", nil, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	empty := NewChatClient("sk-test", "", time.Second)
	_, err = empty.Complete(context.Background(), "m", nil, 0, 0)
	assert.ErrorContains(t, err, "not configured")
}

func TestChatClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewChatClient("sk-test", server.URL, time.Second)
	_, err := client.Complete(context.Background(), "m", nil, 0, 0)
	assert.ErrorContains(t, err, "no choices")
}

func TestEmbeddingsClientEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-large", body["model"])
		assert.Equal(t, "some text", body["input"])
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`))
	}))
	defer server.Close()

	client := NewEmbeddingsClient("sk-test", server.URL, time.Second)
	vec, err := client.Embed(context.Background(), "text-embedding-3-large", "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbeddingsClientNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client := NewEmbeddingsClient("sk-test", server.URL, time.Second)
	_, err := client.Embed(context.Background(), "m", "x")
	assert.ErrorContains(t, err, "no data")
}
