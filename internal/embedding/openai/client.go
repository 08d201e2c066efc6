// Package openai implements the embedding provider against the OpenAI
// embeddings API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkoukk/tiktoken-go"
	"resty.dev/v3"

	"github.com/quillnotes/quill/internal/embedding"
)

const (
	// DefaultMaxRetryAttempts is the retry budget for transient API failures.
	DefaultMaxRetryAttempts = 3

	// maxInputTokens is the input limit of the text-embedding model family.
	maxInputTokens = 8191
)

// Client calls the OpenAI /embeddings endpoint. It implements
// embedding.Provider.
type Client struct {
	httpClient       *resty.Client
	model            string
	maxRetryAttempts uint
	encoder          *tiktoken.Tiktoken
}

// NewClient creates a client for the given API key and embedding model.
func NewClient(apiKey, model string, retryAttempts uint) *Client {
	client := resty.New()
	client.SetBaseURL("https://api.openai.com/v1")
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")

	encoder, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoder, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Default().Warn("token encoder unavailable, skipping input truncation", "error", err)
			encoder = nil
		}
	}

	return &Client{
		httpClient:       client,
		model:            model,
		maxRetryAttempts: retryAttempts,
		encoder:          encoder,
	}
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

// ModelID returns the embedding model identifier used to tag cache records.
func (client *Client) ModelID() string {
	return client.model
}

type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  Usage           `json:"usage"`
}

type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	// Retry on network-related errors
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "i/o timeout") {
		return true
	}

	// Retry on 5xx errors (server errors)
	if strings.Contains(errStr, "response error 5") {
		return true
	}

	// Retry on rate limiting (429)
	if strings.Contains(errStr, "response error 429") {
		return true
	}

	return false
}

// Embed implements the embedding.Provider interface. Any failure is wrapped
// in embedding.ErrProviderUnavailable so the cache can apply its degrade path.
func (client *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text: %w", embedding.ErrInvalidInput)
	}

	var result []float32
	if err := retry.Do(
		func() error {
			vector, err := client.embed(ctx, client.truncate(text))
			if err != nil {
				if !isRetryableError(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			result = vector
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(client.maxRetryAttempts+1),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	); err != nil {
		return nil, fmt.Errorf("%w: %w", embedding.ErrProviderUnavailable, err)
	}
	return result, nil
}

func (client *Client) embed(ctx context.Context, text string) ([]float32, error) {
	requestBody := EmbeddingRequest{
		Model: client.model,
		Input: []string{text},
	}

	response, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		SetResult(&EmbeddingResponse{}).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("httpClient.Post > %w", err)
	}
	if response.IsError() {
		return nil, fmt.Errorf("response error %d: %s", response.StatusCode(), response.String())
	}

	responseBody := response.Result().(*EmbeddingResponse)
	if responseBody == nil || len(responseBody.Data) == 0 {
		return nil, fmt.Errorf("empty response body or data: %s", response.String())
	}
	vector := responseBody.Data[0].Embedding
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty embedding in response: %s", response.String())
	}

	slog.Default().Debug("openai embedding response",
		"model", responseBody.Model,
		"dimension", len(vector),
		"promptTokens", responseBody.Usage.PromptTokens,
	)
	return vector, nil
}

// truncate cuts the text to the model's input token limit.
func (client *Client) truncate(text string) string {
	if client.encoder == nil {
		return text
	}
	tokens := client.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxInputTokens {
		return text
	}
	return client.encoder.Decode(tokens[:maxInputTokens])
}
