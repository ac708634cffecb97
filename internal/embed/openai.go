package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sakuga-labs/scriptrag/internal/version"
)

const (
	defaultOpenAIURL        = "https://api.openai.com/v1"
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultOpenAIDims       = 1536
	defaultOpenAITimeout    = 60 * time.Second
	defaultOpenAIMaxRetries = 3
	defaultOpenAIRetryDelay = 1 * time.Second
	openAIMaxBatchSize      = 2048 // OpenAI supports up to 2048 inputs per request
)

// OpenAIConfig holds configuration for the OpenAI embedding provider.
// BaseURL may point at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey        string
	Model         string
	Dimensions    int
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultOpenAIConfig returns a default configuration for OpenAI.
func DefaultOpenAIConfig() OpenAIConfig {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("SCRIPTRAG_OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = os.Getenv("SCRIPTRAG_OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}

	return OpenAIConfig{
		APIKey:        apiKey,
		Model:         defaultOpenAIModel,
		Dimensions:    defaultOpenAIDims,
		BaseURL:       baseURL,
		Timeout:       defaultOpenAITimeout,
		MaxRetries:    defaultOpenAIMaxRetries,
		RetryInterval: defaultOpenAIRetryDelay,
	}
}

// OpenAIProvider implements the Provider interface using OpenAI's API.
type OpenAIProvider struct {
	config OpenAIConfig
	client *http.Client
}

// openaiEmbeddingRequest is the request body for OpenAI's embedding endpoint.
type openaiEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openaiEmbeddingResponse is the response from OpenAI's embedding endpoint.
type openaiEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// openaiErrorResponse represents an error response from OpenAI.
type openaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// statusError carries the HTTP status of a failed API call so the retry
// loop can tell permanent failures from transient ones.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.message)
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	defaults := DefaultOpenAIConfig()
	if cfg.APIKey == "" {
		cfg.APIKey = defaults.APIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = ModelDimensions(cfg.Model)
		if cfg.Dimensions == 0 {
			cfg.Dimensions = defaultOpenAIDims
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultOpenAIMaxRetries
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = defaultOpenAIRetryDelay
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewProviderError("openai", "embed", ErrEmptyText)
	}

	embeddings, err := p.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in input order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, NewProviderError("openai", "embedBatch", fmt.Errorf("text %d: %w", i, ErrEmptyText))
		}
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxBatchSize {
		end := start + openAIMaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := p.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

// embedWithRetry runs doEmbed with bounded retries and exponential backoff.
// Rate limits and server errors retry; auth failures and cancellation do not.
func (p *OpenAIProvider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	if p.config.APIKey == "" {
		return nil, NewProviderError("openai", "embed", fmt.Errorf("API key not configured"))
	}

	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, NewProviderError("openai", "embed", ErrContextCanceled)
			case <-time.After(p.config.RetryInterval * time.Duration(1<<uint(attempt-1))):
			}
		}

		embeddings, err := p.doEmbed(ctx, texts)
		if err == nil {
			return embeddings, nil
		}

		lastErr = err
		if !openaiRetryable(err) {
			return nil, NewProviderError("openai", "embed", err)
		}
	}
	return nil, NewProviderError("openai", "embed", lastErr)
}

func openaiRetryable(err error) bool {
	if errors.Is(err, ErrContextCanceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	// Transport-level failures are transient.
	return errors.Is(err, ErrProviderUnavailable)
}

// doEmbed performs a single batch embedding request.
func (p *OpenAIProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := openaiEmbeddingRequest{
		Model: p.config.Model,
		Input: texts,
	}
	// Only text-embedding-3-* models accept an explicit dimensions parameter.
	if strings.HasPrefix(p.config.Model, "text-embedding-3") {
		reqBody.Dimensions = p.config.Dimensions
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrContextCanceled
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(body)
		var errResp openaiErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			message = errResp.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, message)
		}
		return nil, &statusError{code: resp.StatusCode, message: message}
	}

	var embResp openaiEmbeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	// The API may return entries out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
		if len(emb) != p.config.Dimensions {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(emb), p.config.Dimensions)
		}
	}

	return embeddings, nil
}

// Model returns the name of the embedding model.
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Dimensions returns the embedding vector dimensions.
func (p *OpenAIProvider) Dimensions() int {
	return p.config.Dimensions
}

// Identity returns the "provider/model" identity string.
func (p *OpenAIProvider) Identity() string {
	return "openai/" + p.config.Model
}

// Ping checks if the API is reachable and the key is valid.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if p.config.APIKey == "" {
		return NewProviderError("openai", "ping", fmt.Errorf("API key not configured"))
	}
	if _, err := p.Embed(ctx, "ping"); err != nil {
		return NewProviderError("openai", "ping", err)
	}
	return nil
}
