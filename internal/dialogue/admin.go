package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/prompts"
)

// onAdminCommand starts one of the prompt management flows.
func (m *Machine) onAdminCommand(ctx context.Context, s *Session, command string, r *reply) {
	switch command {
	case "update_prompts":
		s.Scratch.PromptKey = ""
		m.enter(s, r, StateAdminChoosingPrompt)
	case "new_topic":
		s.Scratch.NewTopicKey = ""
		s.Scratch.NewTopicDisplay = ""
		m.enter(s, r, StateAdminNewTopicName)
	case "load_prompts":
		m.exportPrompts(ctx, s, r)
	}
}

// exportPrompts sends every template as a .txt document.
func (m *Machine) exportPrompts(ctx context.Context, s *Session, r *reply) {
	keys, err := m.deps.Templates.List()
	if err != nil {
		m.failure(ctx, s, r, "list prompts", err)
		return
	}
	if len(keys) == 0 {
		r.text(msgNoPrompts)
		return
	}
	for _, key := range keys {
		content, err := m.deps.Templates.Get(key)
		if err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("export prompt")
			continue
		}
		r.document(domain.Document{
			Filename: key + ".txt",
			MIME:     "text/plain; charset=utf-8",
			Data:     []byte(content),
		})
	}
}

func (m *Machine) onAdmin(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	if ev.Kind == domain.EventButton && ev.Button == domain.ButtonCancel {
		m.enter(s, r, StateEnteringQuery)
		return
	}
	if !m.IsAdmin(s.UserID) {
		// admin rights were revoked mid-flow
		r.text(msgAdminOnly)
		m.enter(s, r, StateEnteringQuery)
		return
	}

	switch s.State {
	case StateAdminChoosingPrompt:
		if ev.Kind == domain.EventButton && ev.Button == domain.ButtonPrompt && prompts.ValidateKey(ev.Arg) == nil {
			s.Scratch.PromptKey = ev.Arg
			m.enter(s, r, StateAdminUploadingPrompt)
			return
		}

	case StateAdminUploadingPrompt:
		if ev.Kind == domain.EventDocument && ev.Document != nil {
			content, ok := m.promptFile(s, *ev.Document, r)
			if !ok {
				return
			}
			if err := m.deps.Templates.Set(s.Scratch.PromptKey, content); err != nil {
				m.failure(ctx, s, r, "update prompt", err)
				return
			}
			m.log.Info().Str("admin", s.UserID).Str("key", s.Scratch.PromptKey).Msg("prompt updated")
			r.text(fmt.Sprintf(msgPromptUpdated, s.Scratch.PromptKey))
			m.enter(s, r, StateEnteringQuery)
			return
		}

	case StateAdminNewTopicName:
		if ev.Kind == domain.EventText {
			key := strings.ToLower(strings.TrimSpace(ev.Text))
			if err := prompts.ValidateTopicKey(key); err != nil {
				r.text(err.Error())
				return
			}
			if m.deps.Topics.Has(key) {
				r.text(fmt.Sprintf(msgTopicExists, key))
				return
			}
			s.Scratch.NewTopicKey = key
			m.enter(s, r, StateAdminNewTopicDisplay)
			return
		}

	case StateAdminNewTopicDisplay:
		if display := strings.TrimSpace(ev.Text); ev.Kind == domain.EventText && display != "" {
			s.Scratch.NewTopicDisplay = display
			m.enter(s, r, StateAdminNewTopicUpload)
			return
		}

	case StateAdminNewTopicUpload:
		if ev.Kind == domain.EventDocument && ev.Document != nil {
			content, ok := m.promptFile(s, *ev.Document, r)
			if !ok {
				return
			}
			key := s.Scratch.NewTopicKey
			if err := m.deps.Templates.Set(prompts.TopicKey(key), content); err != nil {
				m.failure(ctx, s, r, "save topic prompt", err)
				return
			}
			t, err := m.deps.Topics.Add(key, s.Scratch.NewTopicDisplay)
			if err != nil {
				r.text(err.Error())
				m.enter(s, r, StateEnteringQuery)
				return
			}
			if err := m.deps.Templates.Set(prompts.TopicNameKey(key), t.Display); err != nil {
				m.log.Warn().Err(err).Str("topic", key).Msg("topic name not saved")
			}
			m.log.Info().Str("admin", s.UserID).Str("topic", t.Key).Msg("topic added")
			r.text(fmt.Sprintf(msgTopicAdded, t.Display))
			m.enter(s, r, StateEnteringQuery)
			return
		}
	}
	m.reprompt(s, r)
}

// promptFile reads an uploaded .txt prompt.
func (m *Machine) promptFile(s *Session, doc domain.Document, r *reply) (string, bool) {
	if doc.Ext() != ".txt" {
		r.text(msgNeedTxt)
		return "", false
	}
	content, err := m.deps.Extractor.ExtractText(doc.Data, ".txt")
	if err != nil || strings.TrimSpace(content) == "" {
		m.log.Warn().Err(err).Str("user", s.UserID).Msg("prompt file unreadable")
		r.text(msgPromptEmpty)
		return "", false
	}
	return content, true
}
