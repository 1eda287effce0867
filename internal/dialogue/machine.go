package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/soyeahso/scoutbot/internal/analysis"
	"github.com/soyeahso/scoutbot/internal/auth"
	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/extract"
	"github.com/soyeahso/scoutbot/internal/hooks"
	"github.com/soyeahso/scoutbot/internal/llm"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/soyeahso/scoutbot/internal/mailer"
	"github.com/soyeahso/scoutbot/internal/prompts"
)

// Analyzer runs analyses and answers follow-up questions.
type Analyzer interface {
	Run(ctx context.Context, in analysis.RunInput) (*analysis.Outcome, error)
	Answer(ctx context.Context, backend llm.Backend, subject, question string) (analysis.QAEntry, error)
}

// History is the part of the context window manager the machine drives.
type History interface {
	StartChat(userID, topic, systemPrompt string)
	EndActive(userID string) bool
}

// Models resolves selectable backends.
type Models interface {
	Resolve(key string) (llm.Profile, error)
	List() []llm.Profile
}

// Topics is the mutable topic registry.
type Topics interface {
	Get(key string) (prompts.Topic, bool)
	Has(key string) bool
	List() []prompts.Topic
	Add(key, display string) (prompts.Topic, error)
}

// Templates is the prompt template registry.
type Templates interface {
	Get(key string) (string, error)
	Set(key, content string) error
	List() ([]string, error)
	Render(key string, vars map[string]string) (string, error)
}

// Extractor turns uploaded files into text.
type Extractor interface {
	ExtractText(raw []byte, ext string) (string, error)
	Supported() []string
}

// Deps are the collaborators of a Machine. Hooks may be nil.
type Deps struct {
	Directory auth.Directory
	Analyzer  Analyzer
	History   History
	Models    Models
	Topics    Topics
	Templates Templates
	Extractor Extractor
	Mailer    mailer.Sender
	Hooks     *hooks.Manager
}

// Options tune a Machine.
type Options struct {
	Operator     string // receives failure details
	Admins       []string
	DefaultTopic string
	BlockRunes   int // longest text sent in one message
	Now          func() time.Time
}

// Machine is the conversation state machine. Handle is deterministic given
// the collaborators' answers; all I/O towards the user is returned as
// actions.
type Machine struct {
	deps         Deps
	operator     string
	admins       map[string]bool
	adminList    []string
	defaultTopic string
	blockRunes   int
	now          func() time.Time
	log          *logging.Logger
}

// NewMachine creates a state machine.
func NewMachine(deps Deps, opts Options, log *logging.Logger) *Machine {
	m := &Machine{
		deps:         deps,
		operator:     opts.Operator,
		admins:       make(map[string]bool),
		defaultTopic: opts.DefaultTopic,
		blockRunes:   opts.BlockRunes,
		now:          opts.Now,
		log:          log.Sub("dialogue"),
	}
	for _, id := range opts.Admins {
		if !m.admins[id] {
			m.admins[id] = true
			m.adminList = append(m.adminList, id)
		}
	}
	if m.blockRunes <= 0 {
		m.blockRunes = analysis.DefaultBlockRunes
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.defaultTopic == "" && len(prompts.DefaultTopics) > 0 {
		m.defaultTopic = prompts.DefaultTopics[0].Key
	}
	return m
}

// IsAdmin reports whether userID may run admin commands.
func (m *Machine) IsAdmin(userID string) bool { return m.admins[userID] }

// Handle processes one event and returns the resulting state with the
// actions to perform, in order.
func (m *Machine) Handle(ctx context.Context, s *Session, ev domain.Event) (State, []domain.Action) {
	r := &reply{s: s}
	from := s.State
	m.handle(ctx, s, ev, r)
	if from != s.State {
		m.log.Debug().Str("user", s.UserID).Str("from", string(from)).Str("to", string(s.State)).Str("event", string(ev.Kind)).Msg("state changed")
	}
	return s.State, r.actions
}

func (m *Machine) handle(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	if ev.Kind == domain.EventCommand {
		switch ev.Command {
		case "start", "reset":
			m.restart(ctx, s, r)
			return
		case "help":
			help := msgHelp
			if m.IsAdmin(s.UserID) {
				help += msgHelpAdmin
			}
			r.text(help)
			return
		}
	}
	if ev.Kind == domain.EventButton && (ev.Button == domain.ButtonApprove || ev.Button == domain.ButtonDecline) {
		m.decideAccess(ctx, s, ev, r)
		return
	}

	switch s.State {
	case StateIdle:
		m.restart(ctx, s, r)
	case StateAwaitingAuthorization:
		m.onAwaitingAuthorization(ctx, s, ev, r)
	case StateEnteringQuery:
		m.onEnteringQuery(ctx, s, ev, r)
	case StateChoosingTopic:
		m.onChoosingTopic(s, ev, r)
	case StateChoosingModel:
		m.onChoosingModel(s, ev, r)
	case StateAwaitingAttachmentChoice, StateUploadingAttachment:
		m.onAttachment(s, ev, r)
	case StateRunningPipeline:
		if ev.Kind == domain.EventRun {
			m.run(ctx, s, r)
			return
		}
		r.text(msgBusy)
	case StatePresentingSummary:
		m.onPresentingSummary(s, ev, r)
	case StateAwaitingFollowupQuestion:
		m.onFollowupQuestion(ctx, s, ev, r)
	case StateChoosingReportDelivery:
		m.onChoosingDelivery(ctx, s, ev, r)
	case StateAwaitingEmailTarget:
		m.onEmailTarget(ctx, s, ev, r)
	case StateFinalChoice:
		m.onFinalChoice(ctx, s, ev, r)
	case StateAdminChoosingPrompt, StateAdminUploadingPrompt,
		StateAdminNewTopicName, StateAdminNewTopicDisplay, StateAdminNewTopicUpload:
		m.onAdmin(ctx, s, ev, r)
	default:
		m.log.Warn().Str("user", s.UserID).Str("state", string(s.State)).Msg("unknown state, restarting")
		m.restart(ctx, s, r)
	}
}

// restart ends the active history, clears the session and re-checks
// authorization.
func (m *Machine) restart(ctx context.Context, s *Session, r *reply) {
	if m.deps.History.EndActive(s.UserID) {
		m.emit(ctx, hooks.EventSessionEnd, s, nil)
	}
	s.reset()
	r.clearMenus()
	if !m.authorize(ctx, s, r) {
		return
	}
	m.emit(ctx, hooks.EventSessionStart, s, nil)
	r.text(msgWelcome)
	m.enter(s, r, StateEnteringQuery)
}

// authorize checks the directory. Errors fail closed.
func (m *Machine) authorize(ctx context.Context, s *Session, r *reply) bool {
	ok, err := m.deps.Directory.IsAuthorized(ctx, s.UserID)
	if err != nil {
		m.log.Warn().Err(err).Str("user", s.UserID).Msg("authorization check failed")
		s.Authorized = false
		s.State = StateAwaitingAuthorization
		r.menu(msgAuthUnavailable, row(button(domain.ButtonRetryAuth, lblRetryAuth, "")))
		r.notify(m.operator, fmt.Sprintf("Authorization check failed for %s: %v", s.UserID, err))
		return false
	}
	if !ok {
		s.Authorized = false
		s.State = StateAwaitingAuthorization
		text := msgAccessDenied
		if len(m.adminList) > 0 {
			text += " " + msgAccessRequested
		}
		r.menu(text, row(button(domain.ButtonRetryAuth, lblRetryAuth, "")))
		if !s.AccessRequested {
			s.AccessRequested = true
			for _, admin := range m.adminList {
				r.buttonsTo(admin, fmt.Sprintf(msgAccessRequest, s.UserID), row(
					button(domain.ButtonApprove, lblApprove, s.UserID),
					button(domain.ButtonDecline, lblDecline, s.UserID),
				))
			}
		}
		return false
	}
	s.Authorized = true
	return true
}

func (m *Machine) onAwaitingAuthorization(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	if ev.Kind == domain.EventButton && ev.Button == domain.ButtonRetryAuth {
		if m.authorize(ctx, s, r) {
			m.emit(ctx, hooks.EventSessionStart, s, nil)
			r.text(msgWelcome)
			m.enter(s, r, StateEnteringQuery)
		}
		return
	}
	m.enter(s, r, StateAwaitingAuthorization)
}

// decideAccess handles an admin's approve or decline press in any state.
func (m *Machine) decideAccess(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	if !m.IsAdmin(s.UserID) {
		r.text(msgAdminOnly)
		return
	}
	target := ev.Arg
	if target == "" {
		m.reprompt(s, r)
		return
	}

	if ev.Button == domain.ButtonDecline {
		m.log.Info().Str("admin", s.UserID).Str("user", target).Msg("access declined")
		r.text(fmt.Sprintf(msgDeclined, target))
		r.notify(target, msgAccessDeclined)
		return
	}

	granter, ok := m.deps.Directory.(auth.Granter)
	if !ok {
		r.text(fmt.Sprintf(msgGrantUnsupported, target))
		return
	}
	if err := granter.Grant(ctx, target); err != nil {
		m.log.Error().Err(err).Str("user", target).Msg("grant failed")
		r.text(msgGenericFailure)
		r.notify(m.operator, fmt.Sprintf("Granting access to %s failed: %v", target, err))
		return
	}
	m.log.Info().Str("admin", s.UserID).Str("user", target).Msg("access granted")
	r.text(fmt.Sprintf(msgGranted, target))
	r.notify(target, msgAccessGranted)
}

func (m *Machine) onEnteringQuery(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	switch ev.Kind {
	case domain.EventText:
		query := strings.TrimSpace(ev.Text)
		if query == "" {
			m.reprompt(s, r)
			return
		}
		m.startQuery(ctx, s, query, r)
	case domain.EventCommand:
		m.onCommand(ctx, s, ev, r)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) onCommand(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	switch ev.Command {
	case "topic":
		m.enter(s, r, StateChoosingTopic)
	case "model":
		m.enter(s, r, StateChoosingModel)
	case "update_prompts", "new_topic", "load_prompts":
		if !m.IsAdmin(s.UserID) {
			r.text(msgAdminOnly)
			return
		}
		m.onAdminCommand(ctx, s, ev.Command, r)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) startQuery(ctx context.Context, s *Session, query string, r *reply) {
	topic := m.topic(s)
	system, err := m.deps.Templates.Render(topic.PromptKey, nil)
	if err != nil {
		m.failure(ctx, s, r, "topic prompt", err)
		m.enter(s, r, StateEnteringQuery)
		return
	}

	s.clearAnalysis()
	s.Scratch.Query = query
	m.deps.History.StartChat(s.UserID, topic.Key, system)
	m.enter(s, r, StateAwaitingAttachmentChoice)
}

func (m *Machine) onChoosingTopic(s *Session, ev domain.Event, r *reply) {
	switch {
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonTopic && m.deps.Topics.Has(ev.Arg):
		s.Scratch.Topic = ev.Arg
		r.text(fmt.Sprintf(msgTopicSet, m.topic(s).Display))
		m.enter(s, r, StateEnteringQuery)
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonCancel:
		m.enter(s, r, StateEnteringQuery)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) onChoosingModel(s *Session, ev domain.Event, r *reply) {
	switch {
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonModel && m.hasModel(ev.Arg):
		s.Scratch.Model = ev.Arg
		r.text(fmt.Sprintf(msgModelSet, m.modelLabel(s)))
		m.enter(s, r, StateEnteringQuery)
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonCancel:
		m.enter(s, r, StateEnteringQuery)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) onAttachment(s *Session, ev domain.Event, r *reply) {
	switch {
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonAttachFile && s.State == StateAwaitingAttachmentChoice:
		m.enter(s, r, StateUploadingAttachment)
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonNoFile:
		m.beginRun(s, r)
	case ev.Kind == domain.EventDocument && ev.Document != nil:
		m.acceptDocument(s, *ev.Document, r)
	default:
		m.reprompt(s, r)
	}
}

// acceptDocument extracts an attachment. On any failure the state is kept
// so the user can send another file.
func (m *Machine) acceptDocument(s *Session, doc domain.Document, r *reply) {
	text, err := m.deps.Extractor.ExtractText(doc.Data, doc.Ext())
	var unsupported *extract.UnsupportedFormatError
	switch {
	case errors.As(err, &unsupported):
		r.text(fmt.Sprintf(msgUnsupported, displayExt(unsupported.Ext), strings.Join(unsupported.Supported, ", ")))
		return
	case err != nil:
		m.log.Warn().Err(err).Str("user", s.UserID).Str("file", doc.Filename).Msg("attachment extraction failed")
		r.text(msgExtractFailed)
		return
	case strings.TrimSpace(text) == "":
		r.text(msgExtractEmpty)
		return
	}

	s.Scratch.Attachment = text
	s.Scratch.AttachmentName = doc.Filename
	m.log.Info().Str("user", s.UserID).Str("file", doc.Filename).Int("chars", len([]rune(text))).Msg("attachment extracted")
	r.text(fmt.Sprintf(msgFileReceived, doc.Filename))
	m.beginRun(s, r)
}

// beginRun moves to the running state. The caller delivers the actions and
// then feeds an EventRun.
func (m *Machine) beginRun(s *Session, r *reply) {
	r.clearMenus()
	m.enter(s, r, StateRunningPipeline)
}

func (m *Machine) run(ctx context.Context, s *Session, r *reply) {
	profile, err := m.deps.Models.Resolve(s.Scratch.Model)
	if err != nil {
		m.failure(ctx, s, r, "model selection", err)
		m.enter(s, r, StatePresentingSummary)
		return
	}
	topic := m.topic(s)

	m.emit(ctx, hooks.EventPipelineStart, s, map[string]any{"topic": topic.Key, "model": profile.Key})
	out, err := m.deps.Analyzer.Run(ctx, analysis.RunInput{
		UserID:           s.UserID,
		Topic:            topic.Key,
		Query:            s.Scratch.Query,
		Attachment:       s.Scratch.Attachment,
		Profile:          profile,
		SkipSystemPrompt: s.SkipSystemPrompt,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// a reset is waiting to take over the session
			s.State = StatePresentingSummary
			return
		}
		m.failure(ctx, s, r, "analysis", err)
		m.enter(s, r, StatePresentingSummary)
		return
	}

	s.Scratch.Outcome = out
	s.Scratch.Artifact = nil
	s.SkipSystemPrompt = true
	m.emit(ctx, hooks.EventPipelineDone, s, map[string]any{
		"topic":    topic.Key,
		"model":    profile.Key,
		"subject":  out.Request.Subject,
		"failed":   out.Failed,
		"duration": out.Duration.String(),
	})

	summary := fmt.Sprintf(msgSummary, out.Request.Subject, out.Summary)
	if len(out.Failed) > 0 {
		titles := make([]string, 0, len(out.Failed))
		for _, step := range out.Failed {
			titles = append(titles, analysis.StepTitle(step))
		}
		summary += "\n\n" + fmt.Sprintf(msgPartial, strings.Join(titles, ", "))
	}
	r.blocks(summary, m.blockRunes)
	m.enter(s, r, StatePresentingSummary)
}

// failure shows a cause-agnostic message to the user and the full error to
// the operator.
func (m *Machine) failure(ctx context.Context, s *Session, r *reply, what string, err error) {
	m.log.Error().Err(err).Str("user", s.UserID).Str("op", what).Msg("request failed")

	var tl *llm.TokenLimitExceededError
	var rl *llm.RateLimitExceededError
	switch {
	case errors.As(err, &tl) && tl.Limit > 0:
		r.text(fmt.Sprintf(msgTokenLimitN, tl.Limit))
	case errors.As(err, &tl):
		r.text(msgTokenLimit)
	case errors.As(err, &rl):
		r.text(msgRateLimit)
	case errors.Is(err, context.DeadlineExceeded):
		r.text(msgTimeout)
	default:
		r.text(msgGenericFailure)
	}
	r.notify(m.operator, fmt.Sprintf("%s failed for %s: %v", what, s.UserID, err))
}

func (m *Machine) onPresentingSummary(s *Session, ev domain.Event, r *reply) {
	if ev.Kind != domain.EventButton {
		m.reprompt(s, r)
		return
	}
	hasOutcome := s.Scratch.Outcome != nil
	switch {
	case ev.Button == domain.ButtonRegenerate && s.Scratch.Query != "":
		m.beginRun(s, r)
	case ev.Button == domain.ButtonAsk && hasOutcome:
		m.enter(s, r, StateAwaitingFollowupQuestion)
	case ev.Button == domain.ButtonGetReport && hasOutcome:
		m.enter(s, r, StateChoosingReportDelivery)
	case ev.Button == domain.ButtonFinish:
		m.enter(s, r, StateFinalChoice)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) onFollowupQuestion(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	switch {
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonBack:
		m.enter(s, r, StatePresentingSummary)
	case ev.Kind == domain.EventText && strings.TrimSpace(ev.Text) != "":
		m.answer(ctx, s, strings.TrimSpace(ev.Text), r)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) answer(ctx context.Context, s *Session, question string, r *reply) {
	profile, err := m.deps.Models.Resolve(s.Scratch.Model)
	if err != nil {
		m.failure(ctx, s, r, "model selection", err)
		m.enter(s, r, StatePresentingSummary)
		return
	}
	qa, err := m.deps.Analyzer.Answer(ctx, profile.Backend, s.Scratch.Outcome.Request.Subject, question)
	if err != nil {
		m.failure(ctx, s, r, "follow-up question", err)
		m.enter(s, r, StatePresentingSummary)
		return
	}

	s.Scratch.QA = append(s.Scratch.QA, qa)
	s.Scratch.Artifact = nil
	r.blocks(fmt.Sprintf(msgAnswer, qa.Answer), m.blockRunes)
	m.enter(s, r, StatePresentingSummary)
}

func (m *Machine) onChoosingDelivery(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	if ev.Kind != domain.EventButton {
		m.reprompt(s, r)
		return
	}
	switch ev.Button {
	case domain.ButtonDownload:
		art := m.artifact(s)
		r.clearMenus()
		r.document(domain.Document{
			Filename: art.Filename,
			MIME:     art.MIME,
			Data:     art.Data,
			Caption:  fmt.Sprintf(msgReportCaption, s.Scratch.Outcome.Request.Subject),
		})
		m.emit(ctx, hooks.EventReportDelivered, s, map[string]any{
			"via":     "download",
			"file":    art.Filename,
			"subject": s.Scratch.Outcome.Request.Subject,
		})
		m.enter(s, r, StateFinalChoice)
	case domain.ButtonEmail:
		email, found, err := m.deps.Directory.ResolveContactEmail(ctx, s.UserID)
		if err != nil {
			m.log.Warn().Err(err).Str("user", s.UserID).Msg("contact email lookup failed")
		}
		if err == nil && found {
			m.mail(ctx, s, email, r)
			return
		}
		m.enter(s, r, StateAwaitingEmailTarget)
	case domain.ButtonBack:
		m.enter(s, r, StatePresentingSummary)
	default:
		m.reprompt(s, r)
	}
}

func (m *Machine) onEmailTarget(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	switch {
	case ev.Kind == domain.EventButton && ev.Button == domain.ButtonBack:
		m.enter(s, r, StateChoosingReportDelivery)
	case ev.Kind == domain.EventText:
		addr, err := mail.ParseAddress(strings.TrimSpace(ev.Text))
		if err != nil {
			r.text(msgBadEmail)
			return
		}
		m.mail(ctx, s, addr.Address, r)
	default:
		m.reprompt(s, r)
	}
}

// mail sends the artifact. On failure the artifact stays in the session and
// the user is offered the delivery menu again.
func (m *Machine) mail(ctx context.Context, s *Session, to string, r *reply) {
	art := m.artifact(s)
	subject := s.Scratch.Outcome.Request.Subject
	ok, err := m.deps.Mailer.Send(ctx, to,
		fmt.Sprintf(msgEmailSubject, subject),
		fmt.Sprintf(msgEmailBody, subject, s.Scratch.Outcome.Summary),
		&mailer.Attachment{Filename: art.Filename, MIME: art.MIME, Data: art.Data},
	)
	if err == nil && !ok {
		err = &mailer.DeliveryFailure{To: to, Err: errors.New("not accepted")}
	}
	if err != nil {
		m.log.Warn().Err(err).Str("user", s.UserID).Msg("report email failed")
		r.text(msgEmailFailed)
		r.notify(m.operator, fmt.Sprintf("Report email for %s failed: %v", s.UserID, err))
		m.enter(s, r, StateChoosingReportDelivery)
		return
	}

	r.text(fmt.Sprintf(msgEmailSent, to))
	m.emit(ctx, hooks.EventReportDelivered, s, map[string]any{
		"via":     "email",
		"file":    art.Filename,
		"subject": subject,
	})
	m.enter(s, r, StateFinalChoice)
}

// artifact renders the report once per change of its content.
func (m *Machine) artifact(s *Session) *analysis.Artifact {
	if s.Scratch.Artifact == nil {
		rep := analysis.NewReport(s.Scratch.Outcome, m.topic(s).Key, s.Scratch.QA, m.now())
		s.Scratch.Artifact = rep.Artifact()
	}
	return s.Scratch.Artifact
}

func (m *Machine) onFinalChoice(ctx context.Context, s *Session, ev domain.Event, r *reply) {
	if ev.Kind != domain.EventButton {
		m.reprompt(s, r)
		return
	}
	switch ev.Button {
	case domain.ButtonNewAnalysis:
		s.clearAnalysis()
		r.text(msgNewAnalysis)
		m.enter(s, r, StateEnteringQuery)
	case domain.ButtonMenu:
		m.enter(s, r, StatePresentingSummary)
	case domain.ButtonFinish:
		if m.deps.History.EndActive(s.UserID) {
			m.emit(ctx, hooks.EventSessionEnd, s, nil)
		}
		s.reset()
		r.text(msgFarewell)
		m.enter(s, r, StateEnteringQuery)
	default:
		m.reprompt(s, r)
	}
}

// reprompt answers an event the current state does not accept. The state
// does not change.
func (m *Machine) reprompt(s *Session, r *reply) {
	if s.State != StateEnteringQuery {
		r.text(msgUnrecognized)
	}
	m.enter(s, r, s.State)
}

// enter switches to state and renders its prompt.
func (m *Machine) enter(s *Session, r *reply, state State) {
	s.State = state
	cancel := row(button(domain.ButtonCancel, lblCancel, ""))

	switch state {
	case StateAwaitingAuthorization:
		r.menu(msgAccessPending, row(button(domain.ButtonRetryAuth, lblRetryAuth, "")))
	case StateEnteringQuery:
		r.clearMenus()
		r.text(fmt.Sprintf(msgEnterQuery, m.topic(s).Display, m.modelLabel(s)))
	case StateChoosingTopic:
		var rows [][]domain.Button
		for _, t := range m.deps.Topics.List() {
			rows = append(rows, row(button(domain.ButtonTopic, t.Display, t.Key)))
		}
		r.menu(msgChooseTopic, append(rows, cancel)...)
	case StateChoosingModel:
		var rows [][]domain.Button
		for _, p := range m.deps.Models.List() {
			rows = append(rows, row(button(domain.ButtonModel, p.Label(), p.Key)))
		}
		r.menu(msgChooseModel, append(rows, cancel)...)
	case StateAwaitingAttachmentChoice:
		r.menu(msgAttachChoice, row(
			button(domain.ButtonAttachFile, lblAttachFile, ""),
			button(domain.ButtonNoFile, lblNoFile, ""),
		))
	case StateUploadingAttachment:
		r.menu(fmt.Sprintf(msgUpload, strings.Join(m.deps.Extractor.Supported(), ", ")),
			row(button(domain.ButtonNoFile, lblNoFile, "")))
	case StateRunningPipeline:
		r.text(msgRunning)
	case StatePresentingSummary:
		r.menu(msgChooseAction, m.actionMenu(s)...)
	case StateAwaitingFollowupQuestion:
		r.menu(msgAskQuestion, row(button(domain.ButtonBack, lblBack, "")))
	case StateChoosingReportDelivery:
		r.menu(msgChooseDelivery,
			row(button(domain.ButtonDownload, lblDownload, ""), button(domain.ButtonEmail, lblEmail, "")),
			row(button(domain.ButtonBack, lblBack, "")),
		)
	case StateAwaitingEmailTarget:
		r.menu(msgEnterEmail, row(button(domain.ButtonBack, lblBack, "")))
	case StateFinalChoice:
		r.menu(msgFinalChoice,
			row(button(domain.ButtonNewAnalysis, lblNewAnalysis, ""), button(domain.ButtonMenu, lblMenu, "")),
			row(button(domain.ButtonFinish, lblEnd, "")),
		)
	case StateAdminChoosingPrompt:
		keys, err := m.deps.Templates.List()
		if err != nil {
			m.log.Error().Err(err).Msg("list templates")
		}
		var rows [][]domain.Button
		for _, k := range keys {
			rows = append(rows, row(button(domain.ButtonPrompt, k, k)))
		}
		r.menu(msgChoosePrompt, append(rows, cancel)...)
	case StateAdminUploadingPrompt:
		r.menu(fmt.Sprintf(msgUploadPrompt, s.Scratch.PromptKey), cancel)
	case StateAdminNewTopicName:
		r.menu(msgNewTopicName, cancel)
	case StateAdminNewTopicDisplay:
		r.menu(msgNewTopicDisplay, cancel)
	case StateAdminNewTopicUpload:
		r.menu(msgNewTopicUpload, cancel)
	}
}

// actionMenu is the menu after a pipeline run. Without a result only
// regenerate and finish make sense.
func (m *Machine) actionMenu(s *Session) [][]domain.Button {
	if s.Scratch.Outcome == nil {
		return [][]domain.Button{row(
			button(domain.ButtonRegenerate, lblRegenerate, ""),
			button(domain.ButtonFinish, lblFinish, ""),
		)}
	}
	return [][]domain.Button{
		row(button(domain.ButtonRegenerate, lblRegenerate, ""), button(domain.ButtonAsk, lblAsk, "")),
		row(button(domain.ButtonGetReport, lblGetReport, ""), button(domain.ButtonFinish, lblFinish, "")),
	}
}

func (m *Machine) topic(s *Session) prompts.Topic {
	key := s.Scratch.Topic
	if key == "" {
		key = m.defaultTopic
	}
	if t, ok := m.deps.Topics.Get(key); ok {
		return t
	}
	return prompts.Topic{Key: key, Display: key, PromptKey: prompts.TopicKey(key)}
}

func (m *Machine) hasModel(key string) bool {
	for _, p := range m.deps.Models.List() {
		if p.Key == key {
			return true
		}
	}
	return false
}

func (m *Machine) modelLabel(s *Session) string {
	p, err := m.deps.Models.Resolve(s.Scratch.Model)
	if err != nil {
		return "none"
	}
	return p.Label()
}

func (m *Machine) emit(ctx context.Context, event string, s *Session, data map[string]any) {
	if m.deps.Hooks == nil {
		return
	}
	payload := map[string]any{"user": s.UserID, "state": string(s.State)}
	for k, v := range data {
		payload[k] = v
	}
	m.deps.Hooks.EmitAsync(context.WithoutCancel(ctx), event, payload)
}

func displayExt(ext string) string {
	if ext == "" {
		return "without extension"
	}
	return ext
}

func button(id domain.ButtonID, label, arg string) domain.Button {
	return domain.Button{ID: id, Label: label, Arg: arg}
}

func row(buttons ...domain.Button) []domain.Button { return buttons }

// reply accumulates the actions produced by one Handle call.
type reply struct {
	s       *Session
	actions []domain.Action
}

func (r *reply) text(t string) {
	r.actions = append(r.actions, domain.SendText(t))
}

// blocks sends a long text as several messages.
func (r *reply) blocks(t string, maxRunes int) {
	for _, b := range analysis.SplitText(t, maxRunes) {
		r.text(b)
	}
}

// menu replaces the visible button menus with a new one.
func (r *reply) menu(text string, rows ...[]domain.Button) {
	r.clearMenus()
	r.s.menuSeq++
	ref := fmt.Sprintf("menu-%d", r.s.menuSeq)
	r.s.Scratch.Menus = append(r.s.Scratch.Menus, ref)
	r.actions = append(r.actions, domain.SendButtons(ref, text, rows...))
}

func (r *reply) clearMenus() {
	for _, ref := range r.s.Scratch.Menus {
		r.actions = append(r.actions, domain.DeleteMessage(ref))
	}
	r.s.Scratch.Menus = nil
}

func (r *reply) document(doc domain.Document) {
	r.actions = append(r.actions, domain.SendDocument(doc))
}

// notify sends text to another user. An empty recipient is skipped.
func (r *reply) notify(to, text string) {
	if to == "" {
		return
	}
	r.actions = append(r.actions, domain.Notify(to, text))
}

func (r *reply) buttonsTo(to, text string, rows ...[]domain.Button) {
	a := domain.SendButtons("", text, rows...)
	a.To = to
	r.actions = append(r.actions, a)
}
