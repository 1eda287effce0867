package domain

// ActionKind is the type of outbound side effect requested by the dialogue.
type ActionKind string

const (
	ActionSendText      ActionKind = "send_text"
	ActionSendButtons   ActionKind = "send_buttons"
	ActionSendDocument  ActionKind = "send_document"
	ActionDeleteMessage ActionKind = "delete_message"
)

// ButtonID identifies a button independently of its label.
type ButtonID string

const (
	ButtonAttachFile  ButtonID = "attach_file"
	ButtonNoFile      ButtonID = "no_file"
	ButtonRegenerate  ButtonID = "regenerate"
	ButtonAsk         ButtonID = "ask"
	ButtonGetReport   ButtonID = "get_report"
	ButtonFinish      ButtonID = "finish"
	ButtonDownload    ButtonID = "download"
	ButtonEmail       ButtonID = "email"
	ButtonBack        ButtonID = "back"
	ButtonMenu        ButtonID = "menu"
	ButtonNewAnalysis ButtonID = "new_analysis"
	ButtonTopic       ButtonID = "topic"  // Arg: topic key
	ButtonModel       ButtonID = "model"  // Arg: backend key
	ButtonPrompt      ButtonID = "prompt" // Arg: template key
	ButtonRetryAuth   ButtonID = "retry_auth"
	ButtonApprove     ButtonID = "approve" // Arg: user id
	ButtonDecline     ButtonID = "decline" // Arg: user id
	ButtonCancel      ButtonID = "cancel"
)

// Button is one selectable option in a button menu.
type Button struct {
	ID    ButtonID `json:"id"`
	Label string   `json:"label"`
	Arg   string   `json:"arg,omitempty"`
}

// Action is an outbound side effect. The state machine returns ordered
// actions instead of performing I/O itself.
type Action struct {
	Kind ActionKind `json:"kind"`

	// To overrides the recipient. Empty means the session's own user.
	To string `json:"to,omitempty"`

	Text     string     `json:"text,omitempty"`
	Buttons  [][]Button `json:"buttons,omitempty"`
	Document *Document  `json:"document,omitempty"`

	// Ref names this message so a later delete_message can target it.
	Ref string `json:"ref,omitempty"`
	// Target is the Ref of the message to delete.
	Target string `json:"target,omitempty"`
}

// SendText builds a plain text action.
func SendText(text string) Action {
	return Action{Kind: ActionSendText, Text: text}
}

// SendButtons builds a prompt with a button menu.
func SendButtons(ref, text string, rows ...[]Button) Action {
	return Action{Kind: ActionSendButtons, Ref: ref, Text: text, Buttons: rows}
}

// SendDocument builds a file delivery action.
func SendDocument(doc Document) Action {
	return Action{Kind: ActionSendDocument, Document: &doc}
}

// DeleteMessage removes a previously sent message identified by its Ref.
func DeleteMessage(ref string) Action {
	return Action{Kind: ActionDeleteMessage, Target: ref}
}

// Notify addresses a text action to another user, such as an operator or admin.
func Notify(to, text string) Action {
	return Action{Kind: ActionSendText, To: to, Text: text}
}

// FlatButtons returns the buttons of every row, in order.
func (a Action) FlatButtons() []Button {
	var out []Button
	for _, row := range a.Buttons {
		out = append(out, row...)
	}
	return out
}
