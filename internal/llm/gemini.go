package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/scoutbot/internal/logging"
	"google.golang.org/genai"
)

// GeminiBackend talks to the Gemini API through the genai SDK.
type GeminiBackend struct {
	opts   BackendOptions
	client *genai.Client
	log    *logging.Logger
}

// NewGeminiBackend creates a Gemini backend.
func NewGeminiBackend(ctx context.Context, opts BackendOptions, log *logging.Logger) (*GeminiBackend, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not configured", opts.Name)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create Gemini client: %w", opts.Name, err)
	}
	return &GeminiBackend{
		opts:   opts,
		client: client,
		log:    log.Sub("llm.gemini").With("backend", opts.Name),
	}, nil
}

// Name returns the backend name.
func (g *GeminiBackend) Name() string { return g.opts.Name }

// GetResponse sends a GenerateContent request. Thought parts are skipped.
func (g *GeminiBackend) GetResponse(ctx context.Context, messages []Message) (string, error) {
	system, turns := splitSystem(messages)

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if g.opts.Temperature != nil {
		t := float32(*g.opts.Temperature)
		cfg.Temperature = &t
	}
	if g.opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.opts.MaxTokens)
	}

	g.log.Debug().Str("model", g.opts.Model).Int("messages", len(turns)).Msg("sending generate request")
	result, err := g.client.Models.GenerateContent(ctx, g.opts.Model, toGeminiContents(turns), cfg)
	if err != nil {
		return "", classifyGeminiError(g.opts.Name, err)
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", newProviderError(g.opts.Name, 0, "empty response content", nil)
	}
	return sb.String(), nil
}

func toGeminiContents(turns []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: m.Content}},
			Role:  role,
		})
	}
	return contents
}

// classifyGeminiError maps genai failures by their message, which carries
// the HTTP status and the API status name.
func classifyGeminiError(name string, err error) error {
	msg := err.Error()
	code := 0
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		code = 429
	case strings.Contains(msg, "401") || strings.Contains(msg, "UNAUTHENTICATED"):
		code = 401
	case strings.Contains(msg, "403") || strings.Contains(msg, "PERMISSION_DENIED"):
		code = 403
	case strings.Contains(msg, "400") || strings.Contains(msg, "INVALID_ARGUMENT"):
		code = 400
	case strings.Contains(msg, "500") || strings.Contains(msg, "INTERNAL"):
		code = 500
	}
	return newProviderError(name, code, msg, err)
}
