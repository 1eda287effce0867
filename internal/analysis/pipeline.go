// Package analysis runs the multi-step analysis pipeline and accumulates the
// report delivered to the user.
//
// A run is parse → market → rivals → synergy → assemble → summarize. Every
// step sees the findings of the steps before it. A failing step leaves an
// inline marker in the result and the run continues with the next step.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/scoutbot/internal/chatctx"
	"github.com/soyeahso/scoutbot/internal/llm"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/prompts"
)

// SummaryUnavailable is shown when the summary call fails.
const SummaryUnavailable = "Summary unavailable."

// ErrAllStepsFailed is returned when no enabled step produced output.
var ErrAllStepsFailed = errors.New("analysis: all steps failed")

// Conversation is the history store the pipeline writes to.
type Conversation interface {
	StartChat(userID, topic, systemPrompt string)
	AddMessage(userID, topic, role, content string) error
	MessagesForModel(userID, topic string, limit int, skipSystemPrompt bool) ([]llm.Message, error)
	ActiveTopic(userID string) (string, bool)
}

// Renderer resolves and fills prompt templates.
type Renderer interface {
	Render(key string, vars map[string]string) (string, error)
}

// Result maps step name to its output or failure marker.
type Result map[string]string

// RunInput describes one pipeline run.
type RunInput struct {
	UserID           string
	Topic            string
	Query            string
	Attachment       string
	Profile          llm.Profile
	SkipSystemPrompt bool
}

// Outcome is everything a run produced.
type Outcome struct {
	Request  Request
	Result   Result
	Failed   []string // failed step names, in execution order
	Document string   // assembled sections of successful steps
	Summary  string
	Duration time.Duration
}

// Succeeded returns the steps that produced output, in execution order.
func (o *Outcome) Succeeded() []string {
	var out []string
	for _, s := range o.Request.EnabledSteps() {
		if _, ok := o.Result[s]; ok && !o.failed(s) {
			out = append(out, s)
		}
	}
	return out
}

func (o *Outcome) failed(step string) bool {
	for _, f := range o.Failed {
		if f == step {
			return true
		}
	}
	return false
}

// Pipeline runs analyses against a model backend.
type Pipeline struct {
	history       Conversation
	templates     Renderer
	maxAttachment int
	log           *logging.Logger
}

// NewPipeline creates a pipeline. Attachment text longer than maxAttachment
// runes is truncated; 0 means no limit.
func NewPipeline(history Conversation, templates Renderer, maxAttachment int, log *logging.Logger) *Pipeline {
	return &Pipeline{
		history:       history,
		templates:     templates,
		maxAttachment: maxAttachment,
		log:           log.Sub("analysis"),
	}
}

// StepMarker is the inline result recorded for a failed step.
func StepMarker(step string, err error) string {
	return fmt.Sprintf("[step %s failed: %s]", step, failureReason(err))
}

func failureReason(err error) string {
	var rl *llm.RateLimitExceededError
	var tl *llm.TokenLimitExceededError
	switch {
	case errors.As(err, &tl):
		if tl.Limit > 0 {
			return fmt.Sprintf("token limit %d exceeded", tl.Limit)
		}
		return "token limit exceeded"
	case errors.As(err, &rl):
		return "rate limit exceeded"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}

// Run executes the pipeline. It returns an error only when the context ends,
// the history was closed under it, or every enabled step failed; in the last
// case the partial Outcome is returned as well.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*Outcome, error) {
	start := time.Now()
	backend := in.Profile.Backend
	log := p.log.With("user", in.UserID).With("backend", in.Profile.Key)

	if err := p.ensureHistory(in); err != nil {
		return nil, err
	}

	req := p.parse(ctx, backend, in.Query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info().Str("subject", req.Subject).Strs("steps", req.EnabledSteps()).Msg("analysis request parsed")

	out := &Outcome{Request: req, Result: make(Result)}
	attachment := truncateRunes(in.Attachment, p.maxAttachment)

	var transcript []string
	var lastErr error
	for _, step := range req.EnabledSteps() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := p.runStep(ctx, in, step, req.Subject, attachment, transcript)
		if err != nil {
			if isHistoryClosed(err) {
				return nil, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			marker := StepMarker(step, err)
			out.Result[step] = marker
			out.Failed = append(out.Failed, step)
			// keep user/assistant alternation intact for later steps
			if addErr := p.history.AddMessage(in.UserID, in.Topic, llm.RoleAssistant, marker); addErr != nil && isHistoryClosed(addErr) {
				return nil, addErr
			}
			log.Warn().Str("step", step).Err(err).Msg("analysis step failed")
			continue
		}

		out.Result[step] = text
		transcript = append(transcript, fmt.Sprintf("## %s\n\n%s", StepTitle(step), text))
		log.Debug().Str("step", step).Int("length", len(text)).Msg("analysis step done")
	}

	out.Document = assemble(out)
	if len(out.Succeeded()) == 0 {
		out.Summary = SummaryUnavailable
		out.Duration = time.Since(start)
		return out, fmt.Errorf("%w: %w", ErrAllStepsFailed, lastErr)
	}

	out.Summary = p.summarize(ctx, backend, req.Subject, out.Document)
	out.Duration = time.Since(start)
	log.Info().Int("failed", len(out.Failed)).Dur("duration", out.Duration).Msg("analysis finished")
	return out, nil
}

// ensureHistory starts a history for the topic when none is active.
func (p *Pipeline) ensureHistory(in RunInput) error {
	if topic, ok := p.history.ActiveTopic(in.UserID); ok && topic == in.Topic {
		return nil
	}
	system, err := p.templates.Render(prompts.TopicKey(in.Topic), nil)
	if err != nil {
		return fmt.Errorf("topic prompt: %w", err)
	}
	p.history.StartChat(in.UserID, in.Topic, system)
	return nil
}

func (p *Pipeline) parse(ctx context.Context, backend llm.Backend, query string) Request {
	system, err := p.templates.Render(prompts.KeyParse, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("parse prompt unavailable, using fallback request")
		return FallbackRequest()
	}
	raw, err := backend.GetResponse(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: query},
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("parse call failed, using fallback request")
		return FallbackRequest()
	}
	req, err := ParseRequest(raw)
	if err != nil {
		p.log.Debug().Err(err).Msg("using fallback request")
	}
	return req
}

func (p *Pipeline) runStep(ctx context.Context, in RunInput, step, subject, attachment string, transcript []string) (string, error) {
	prompt, err := p.templates.Render("step."+step, map[string]string{"subject": subject})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nUser request:\n")
	sb.WriteString(in.Query)
	if attachment != "" {
		sb.WriteString("\n\nContext from the attached file:\n")
		sb.WriteString(attachment)
	}
	if len(transcript) > 0 {
		sb.WriteString("\n\nFindings from previous steps:\n\n")
		sb.WriteString(strings.Join(transcript, "\n\n"))
	}

	if err := p.history.AddMessage(in.UserID, in.Topic, llm.RoleUser, sb.String()); err != nil {
		return "", err
	}
	msgs, err := p.history.MessagesForModel(in.UserID, in.Topic, in.Profile.Window, in.SkipSystemPrompt)
	if err != nil {
		return "", err
	}

	text, err := in.Profile.Backend.GetResponse(ctx, msgs)
	if err != nil {
		return "", err
	}
	if err := p.history.AddMessage(in.UserID, in.Topic, llm.RoleAssistant, text); err != nil {
		return "", err
	}
	return text, nil
}

func (p *Pipeline) summarize(ctx context.Context, backend llm.Backend, subject, document string) string {
	system, err := p.templates.Render(prompts.KeySummary, map[string]string{"subject": subject})
	if err != nil {
		p.log.Warn().Err(err).Msg("summary prompt unavailable")
		return SummaryUnavailable
	}
	summary, err := backend.GetResponse(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: document},
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		p.log.Warn().Err(err).Msg("summary call failed")
		return SummaryUnavailable
	}
	return summary
}

// Answer answers one follow-up question from {subject, question} only.
func (p *Pipeline) Answer(ctx context.Context, backend llm.Backend, subject, question string) (QAEntry, error) {
	system, err := p.templates.Render(prompts.KeyQA, map[string]string{"subject": subject, "question": question})
	if err != nil {
		return QAEntry{}, err
	}
	answer, err := backend.GetResponse(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: question},
	})
	if err != nil {
		return QAEntry{}, err
	}
	return QAEntry{Question: question, Answer: answer, AskedAt: time.Now()}, nil
}

// isHistoryClosed reports whether the history was ended or reset under a run.
func isHistoryClosed(err error) bool {
	var inactive *chatctx.InactiveSessionError
	var missing *chatctx.NotFoundError
	return errors.As(err, &inactive) || errors.As(err, &missing)
}

// assemble renders the sections of successful steps.
func assemble(out *Outcome) string {
	var parts []string
	for _, step := range out.Succeeded() {
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", StepTitle(step), out.Result[step]))
	}
	return strings.Join(parts, "\n\n")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
