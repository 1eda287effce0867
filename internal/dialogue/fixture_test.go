package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soyeahso/scoutbot/internal/analysis"
	"github.com/soyeahso/scoutbot/internal/chatctx"
	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/extract"
	"github.com/soyeahso/scoutbot/internal/llm"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/mailer"
	"github.com/soyeahso/scoutbot/internal/prompts"
)

const (
	testUser     = "test:ann"
	testAdmin    = "test:root"
	testOperator = "test:ops"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- fakes ---

type fakeDirectory struct {
	mu         sync.Mutex
	authorized map[string]bool
	emails     map[string]string
	err        error
	granted    []string
}

func newFakeDirectory(ids ...string) *fakeDirectory {
	d := &fakeDirectory{authorized: make(map[string]bool), emails: make(map[string]string)}
	for _, id := range ids {
		d.authorized[id] = true
	}
	return d
}

func (d *fakeDirectory) IsAuthorized(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.authorized[id], nil
}

func (d *fakeDirectory) ResolveContactEmail(_ context.Context, id string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.emails[id]
	return e, ok, nil
}

func (d *fakeDirectory) Grant(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authorized[id] = true
	d.granted = append(d.granted, id)
	return nil
}

func (d *fakeDirectory) Revoke(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.authorized, id)
	return nil
}

type sentMail struct {
	to, subject, body string
	att               *mailer.Attachment
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string, att *mailer.Attachment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, &mailer.DeliveryFailure{To: to, Err: f.err}
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body, att: att})
	return true, nil
}

// scripted answers model calls by recognizing the prompt in use.
type scripted struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	calls   []string
	last    map[string][]llm.Message
	// block, when set, is called before answering and may wait on ctx.
	block func(ctx context.Context, kind string, msgs []llm.Message) error
}

func newScripted() *scripted {
	return &scripted{
		replies: map[string]string{
			"parse":   `{"subject": "Acme Corp", "market": 1, "rivals": 1, "synergy": 1}`,
			"market":  "market findings",
			"rivals":  "rival findings",
			"synergy": "synergy findings",
			"summary": "short summary",
			"qa":      "an answer",
		},
		fail: map[string]error{},
		last: map[string][]llm.Message{},
	}
}

func classify(msgs []llm.Message) string {
	first := msgs[0].Content
	last := msgs[len(msgs)-1].Content
	switch {
	case strings.HasPrefix(first, "Extract the analysis request"):
		return "parse"
	case strings.HasPrefix(first, "Write a short executive summary"):
		return "summary"
	case strings.HasPrefix(first, "You are an analyst answering"):
		return "qa"
	case strings.HasPrefix(last, "Describe the market"):
		return "market"
	case strings.HasPrefix(last, "Identify the main competitors"):
		return "rivals"
	case strings.HasPrefix(last, "Assess the potential synergies"):
		return "synergy"
	}
	return "unknown"
}

func (s *scripted) GetResponse(ctx context.Context, msgs []llm.Message) (string, error) {
	kind := classify(msgs)
	s.mu.Lock()
	s.calls = append(s.calls, kind)
	s.last[kind] = msgs
	block := s.block
	s.mu.Unlock()

	if block != nil {
		if err := block(ctx, kind, msgs); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[kind]; err != nil {
		return "", err
	}
	return s.replies[kind], nil
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) callKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *scripted) lastCall(kind string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[kind]
}

// --- fixture ---

type fixture struct {
	machine   *Machine
	history   *chatctx.Manager
	templates *prompts.Templates
	topics    *prompts.TopicRegistry
	models    *llm.Registry
	model     *scripted
	dir       *fakeDirectory
	mail      *fakeMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := silentLog()

	history := chatctx.NewManager(time.Minute, log)
	templates := prompts.NewTemplates(prompts.NewMemoryStore(), log)
	topics := prompts.NewTopicRegistry()
	model := newScripted()

	models := llm.NewRegistry(log)
	models.Register(llm.Profile{Key: "scripted", Display: "Scripted model", Backend: model})
	models.Register(llm.Profile{Key: "other", Display: "Other model", Backend: model})
	models.SetFallback("scripted")

	f := &fixture{
		history:   history,
		templates: templates,
		topics:    topics,
		models:    models,
		model:     model,
		dir:       newFakeDirectory(testUser, testAdmin),
		mail:      &fakeMailer{},
	}
	f.machine = NewMachine(Deps{
		Directory: f.dir,
		Analyzer:  analysis.NewPipeline(history, templates, 1000, log),
		History:   history,
		Models:    models,
		Topics:    topics,
		Templates: templates,
		Extractor: extract.New(),
		Mailer:    f.mail,
	}, Options{
		Operator:     testOperator,
		Admins:       []string{testAdmin},
		DefaultTopic: "investment",
		Now:          func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	}, log)
	return f
}

// --- event helpers ---

func text(user, s string) domain.Event { return domain.TextEvent(user, s) }

func press(user string, id domain.ButtonID) domain.Event { return domain.ButtonEvent(user, id, "") }

func pressArg(user string, id domain.ButtonID, arg string) domain.Event {
	return domain.ButtonEvent(user, id, arg)
}

func upload(user, name, content string) domain.Event {
	return domain.DocumentEvent(user, domain.Document{Filename: name, Data: []byte(content)})
}

func runEvent(user string) domain.Event { return domain.Event{UserID: user, Kind: domain.EventRun} }

// --- action helpers ---

func texts(actions []domain.Action) []string {
	var out []string
	for _, a := range actions {
		if a.Kind == domain.ActionSendText || a.Kind == domain.ActionSendButtons {
			out = append(out, a.Text)
		}
	}
	return out
}

func joined(actions []domain.Action) string { return strings.Join(texts(actions), "\n---\n") }

func lastMenu(actions []domain.Action) (domain.Action, bool) {
	for i := len(actions) - 1; i >= 0; i-- {
		if actions[i].Kind == domain.ActionSendButtons && actions[i].To == "" {
			return actions[i], true
		}
	}
	return domain.Action{}, false
}

func buttonIDs(a domain.Action) []domain.ButtonID {
	var out []domain.ButtonID
	for _, b := range a.FlatButtons() {
		out = append(out, b.ID)
	}
	return out
}

func documents(actions []domain.Action) []*domain.Document {
	var out []*domain.Document
	for _, a := range actions {
		if a.Kind == domain.ActionSendDocument {
			out = append(out, a.Document)
		}
	}
	return out
}

func addressedTo(actions []domain.Action, to string) []domain.Action {
	var out []domain.Action
	for _, a := range actions {
		if a.To == to {
			out = append(out, a)
		}
	}
	return out
}

// step feeds ev and fails the test unless the machine ends in want.
func (f *fixture) step(t *testing.T, s *Session, ev domain.Event, want State) []domain.Action {
	t.Helper()
	got, actions := f.machine.Handle(context.Background(), s, ev)
	require.Equal(t, want, got, "actions: %s", joined(actions))
	return actions
}

// toSummary drives a fresh session through one successful analysis.
func (f *fixture) toSummary(t *testing.T, user string) *Session {
	t.Helper()
	s := NewSession(user)
	f.step(t, s, text(user, "/start"), StateEnteringQuery)
	f.step(t, s, text(user, "Analyze Acme Corp"), StateAwaitingAttachmentChoice)
	f.step(t, s, press(user, domain.ButtonNoFile), StateRunningPipeline)
	f.step(t, s, runEvent(user), StatePresentingSummary)
	return s
}

var errBoom = errors.New("boom")
