// Package dialogue implements the per-user conversation state machine and
// the service that serializes events for each user.
package dialogue

import (
	"github.com/soyeahso/scoutbot/internal/analysis"
)

// State is a node of the conversation state machine.
type State string

const (
	StateIdle                     State = "idle"
	StateAwaitingAuthorization    State = "awaiting_authorization"
	StateEnteringQuery            State = "entering_query"
	StateChoosingTopic            State = "choosing_topic"
	StateChoosingModel            State = "choosing_model"
	StateAwaitingAttachmentChoice State = "awaiting_attachment_choice"
	StateUploadingAttachment      State = "uploading_attachment"
	StateRunningPipeline          State = "running_pipeline"
	StatePresentingSummary        State = "presenting_summary"
	StateAwaitingFollowupQuestion State = "awaiting_followup_question"
	StateChoosingReportDelivery   State = "choosing_report_delivery"
	StateAwaitingEmailTarget      State = "awaiting_email_target"
	StateFinalChoice              State = "final_choice"

	StateAdminChoosingPrompt  State = "admin_choosing_prompt"
	StateAdminUploadingPrompt State = "admin_uploading_prompt"
	StateAdminNewTopicName    State = "admin_new_topic_name"
	StateAdminNewTopicDisplay State = "admin_new_topic_display"
	StateAdminNewTopicUpload  State = "admin_new_topic_upload"
)

// Scratch is the mutable per-session working data.
type Scratch struct {
	Topic string // topic key; empty means the configured default
	Model string // backend key; empty means the registry default

	Query          string
	Attachment     string
	AttachmentName string

	Outcome  *analysis.Outcome
	QA       []analysis.QAEntry
	Artifact *analysis.Artifact // retained until the next change to the report

	// Refs of button menus still visible to the user.
	Menus []string

	PromptKey       string // admin: template being replaced
	NewTopicKey     string // admin: topic being created
	NewTopicDisplay string
}

// Session is the conversation state of one user. Only the Machine mutates it.
type Session struct {
	UserID           string
	State            State
	Authorized       bool
	AccessRequested  bool
	SkipSystemPrompt bool
	Scratch          Scratch

	menuSeq int
}

// NewSession returns a session in the idle state.
func NewSession(userID string) *Session {
	return &Session{UserID: userID, State: StateIdle}
}

// reset clears the working data. Model and topic choices survive.
func (s *Session) reset() {
	s.Scratch = Scratch{Topic: s.Scratch.Topic, Model: s.Scratch.Model, Menus: s.Scratch.Menus}
	s.SkipSystemPrompt = false
}

// clearAnalysis drops everything derived from the previous query.
func (s *Session) clearAnalysis() {
	s.Scratch.Query = ""
	s.Scratch.Attachment = ""
	s.Scratch.AttachmentName = ""
	s.Scratch.Outcome = nil
	s.Scratch.QA = nil
	s.Scratch.Artifact = nil
	s.SkipSystemPrompt = false
}
