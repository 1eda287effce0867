package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/soyeahso/scoutbot/internal/logging"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicBackend talks to the Anthropic messages API.
type AnthropicBackend struct {
	opts   BackendOptions
	client *anthropic.Client
	log    *logging.Logger
}

// NewAnthropicBackend creates an Anthropic backend.
func NewAnthropicBackend(opts BackendOptions, log *logging.Logger) (*AnthropicBackend, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not configured", opts.Name)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)
	return &AnthropicBackend{
		opts:   opts,
		client: &client,
		log:    log.Sub("llm.anthropic").With("backend", opts.Name),
	}, nil
}

// Name returns the backend name.
func (a *AnthropicBackend) Name() string { return a.opts.Name }

// GetResponse sends a messages request. System messages travel in the
// top-level system field.
func (a *AnthropicBackend) GetResponse(ctx context.Context, messages []Message) (string, error) {
	system, turns := splitSystem(messages)

	maxTokens := int64(a.opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.opts.Model),
		MaxTokens: maxTokens,
		Messages:  toAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if a.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*a.opts.Temperature)
	}

	a.log.Debug().Str("model", a.opts.Model).Int("messages", len(turns)).Msg("sending messages request")
	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", newProviderError(a.opts.Name, apiErr.StatusCode, err.Error(), err)
		}
		return "", newProviderError(a.opts.Name, 0, err.Error(), err)
	}

	var content string
	for _, block := range message.Content {
		content += block.Text
	}
	if content == "" {
		return "", newProviderError(a.opts.Name, 0, "empty response content", nil)
	}
	return content, nil
}

// toAnthropicMessages maps dialogue turns. The API requires the first turn
// to come from the user, so a leading assistant turn is dropped.
func toAnthropicMessages(turns []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		switch m.Role {
		case RoleAssistant:
			if len(out) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}
