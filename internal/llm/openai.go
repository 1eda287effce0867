package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/version"
)

// OpenAIBackend talks to the OpenAI chat completions API or any vendor that
// speaks it (Perplexity, DeepSeek) when BaseURL is set.
type OpenAIBackend struct {
	opts   BackendOptions
	client *openai.Client
	log    *logging.Logger
}

// NewOpenAIBackend creates an OpenAI-compatible backend. SDK retries are
// disabled; the Guard owns retry.
func NewOpenAIBackend(opts BackendOptions, log *logging.Logger) (*OpenAIBackend, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not configured", opts.Name)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return &OpenAIBackend{
		opts:   opts,
		client: &client,
		log:    log.Sub("llm.openai").With("backend", opts.Name),
	}, nil
}

// Name returns the backend name.
func (o *OpenAIBackend) Name() string { return o.opts.Name }

// GetResponse sends a non-streaming chat completion request.
func (o *OpenAIBackend) GetResponse(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.opts.Model),
		Messages: toOpenAIMessages(messages),
	}
	if o.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.opts.MaxTokens))
	}
	if o.opts.Temperature != nil {
		params.Temperature = openai.Float(*o.opts.Temperature)
	}

	o.log.Debug().Str("model", o.opts.Model).Int("messages", len(messages)).Msg("sending chat completion")
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", newProviderError(o.opts.Name, 0, "no response choices returned", nil)
	}

	content := completion.Choices[0].Message.Content
	if content == "" {
		return "", newProviderError(o.opts.Name, 0, "empty response content", nil)
	}
	o.log.Debug().Int("contentLength", len(content)).Msg("chat completion received")
	return content, nil
}

func (o *OpenAIBackend) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return newProviderError(o.opts.Name, apiErr.StatusCode, err.Error(), err)
	}
	return newProviderError(o.opts.Name, 0, err.Error(), err)
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
