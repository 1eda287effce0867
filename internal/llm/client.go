// Package llm defines the model backend contract and its providers.
//
// Every provider implements Backend. Callers never talk to a provider
// directly: NewRegistryFromConfig wraps each one in a Guard, which owns
// request-rate limiting, retry with backoff on rate-limit errors, and the
// translation of token-limit failures into TokenLimitExceededError.
package llm

import (
	"context"
	"strings"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend is the interface all model providers must implement.
type Backend interface {
	// GetResponse sends the conversation and returns the assistant reply.
	GetResponse(ctx context.Context, messages []Message) (string, error)

	// Name returns the backend name (e.g., "chatgpt", "claude").
	Name() string
}

// BackendOptions carries the per-backend settings shared by all providers.
type BackendOptions struct {
	Name        string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature *float64
}

// splitSystem separates system messages from the dialogue turns. Providers
// that take the system prompt out of band join multiple system messages.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}
