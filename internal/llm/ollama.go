package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/version"
)

// OllamaBackend is a direct HTTP client for a local Ollama server.
type OllamaBackend struct {
	opts    BackendOptions
	baseURL string
	client  *http.Client
	log     *logging.Logger
}

// NewOllamaBackend creates an Ollama backend.
// BaseURL should be like "http://localhost:11434".
func NewOllamaBackend(opts BackendOptions, log *logging.Logger) *OllamaBackend {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaBackend{
		opts:    opts,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 300 * time.Second},
		log:     log.Sub("llm.ollama").With("backend", opts.Name),
	}
}

// Name returns the backend name.
func (o *OllamaBackend) Name() string { return o.opts.Name }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// GetResponse sends a non-streaming /api/chat request.
func (o *OllamaBackend) GetResponse(ctx context.Context, messages []Message) (string, error) {
	body := ollamaChatRequest{
		Model:    o.opts.Model,
		Messages: messages,
		Stream:   false,
	}
	if o.opts.Temperature != nil || o.opts.MaxTokens > 0 {
		body.Options = &ollamaOptions{Temperature: o.opts.Temperature, NumPredict: o.opts.MaxTokens}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	o.log.Debug().Str("model", o.opts.Model).Int("messages", len(messages)).Msg("sending chat request")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", newProviderError(o.opts.Name, 0, "request failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result ollamaChatResponse
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &result) == nil && result.Error != "" {
			msg = result.Error
		}
		return "", newProviderError(o.opts.Name, resp.StatusCode, msg, nil)
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Message.Content == "" {
		return "", newProviderError(o.opts.Name, 0, "empty response content", nil)
	}
	return result.Message.Content, nil
}
