// Package providers holds the OpenAI-compatible HTTP clients backing the
// remote summarization, narration, and embedding capabilities. Clients are
// constructed once from configuration; a missing credential means the
// caller selects a local implementation instead.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// ChatMessage is one turn in a chat-completions request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient calls a chat-completions endpoint.
type ChatClient struct {
	apiKey     string
	apiBase    string
	httpClient *http.Client
}

func NewChatClient(apiKey, apiBase string, timeout time.Duration) *ChatClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChatClient{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete sends the messages and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, model string, messages []ChatMessage, maxTokens int, temperature float64) (string, error) {
	if c.apiBase == "" {
		return "", fmt.Errorf("chat API base not configured")
	}

	requestBody := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
	}
	if maxTokens > 0 {
		requestBody["max_tokens"] = maxTokens
	}

	body, err := c.post(ctx, "/chat/completions", requestBody)
	if err != nil {
		return "", err
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return strings.TrimSpace(apiResponse.Choices[0].Message.Content), nil
}

func (c *ChatClient) post(ctx context.Context, path string, requestBody map[string]any) ([]byte, error) {
	return postJSON(ctx, c.httpClient, c.apiBase+path, c.apiKey, requestBody)
}

// EmbeddingsClient calls an embeddings endpoint.
type EmbeddingsClient struct {
	apiKey     string
	apiBase    string
	httpClient *http.Client
}

func NewEmbeddingsClient(apiKey, apiBase string, timeout time.Duration) *EmbeddingsClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &EmbeddingsClient{
		apiKey:     apiKey,
		apiBase:    strings.TrimRight(apiBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed returns the raw embedding vector for input. Callers own padding
// and normalization.
func (c *EmbeddingsClient) Embed(ctx context.Context, model, input string) ([]float32, error) {
	if c.apiBase == "" {
		return nil, fmt.Errorf("embeddings API base not configured")
	}

	body, err := postJSON(ctx, c.httpClient, c.apiBase+"/embeddings", c.apiKey, map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return nil, err
	}

	var apiResponse struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding response: %w", err)
	}
	if len(apiResponse.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return apiResponse.Data[0].Embedding, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, requestBody map[string]any) ([]byte, error) {
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider request failed:\n  Status: %d\n  Body:   %s", resp.StatusCode, string(body))
	}
	return body, nil
}
