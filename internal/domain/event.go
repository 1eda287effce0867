package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// EventKind classifies an inbound event.
type EventKind string

const (
	EventText     EventKind = "text"
	EventDocument EventKind = "document"
	EventButton   EventKind = "button"
	EventCommand  EventKind = "command"

	// EventRun is produced internally to execute the analysis pipeline once
	// the session has entered the running state. Transports never emit it.
	EventRun EventKind = "run"
)

// Document is a file attached to an event or carried by an action.
type Document struct {
	Filename string `json:"filename"`
	MIME     string `json:"mime,omitempty"`
	Data     []byte `json:"data"`
	Caption  string `json:"caption,omitempty"`
}

// Ext returns the lowercased file extension including the dot.
func (d Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Filename))
}

// Event is one decoded inbound interaction from a user.
type Event struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName,omitempty"`
	Kind        EventKind `json:"kind"`
	Text        string    `json:"text,omitempty"`
	Command     string    `json:"command,omitempty"`
	Button      ButtonID  `json:"button,omitempty"`
	Arg         string    `json:"arg,omitempty"`
	Document    *Document `json:"document,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TextEvent decodes free text typed by a user. Text starting with "/" is a
// command: "/model gemini" becomes Command "model" with Arg "gemini".
func TextEvent(userID, text string) Event {
	ev := Event{UserID: userID, Kind: EventText, Text: text, Timestamp: time.Now()}

	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) < 2 {
		return ev
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	// Telegram-style "/start@botname" suffixes are dropped.
	name, _, _ = strings.Cut(name, "@")
	ev.Kind = EventCommand
	ev.Command = strings.ToLower(name)
	ev.Arg = strings.TrimSpace(arg)
	ev.Text = ""
	return ev
}

// ButtonEvent decodes a button press.
func ButtonEvent(userID string, id ButtonID, arg string) Event {
	return Event{UserID: userID, Kind: EventButton, Button: id, Arg: arg, Timestamp: time.Now()}
}

// DocumentEvent decodes an uploaded file with an optional caption.
func DocumentEvent(userID string, doc Document) Event {
	return Event{UserID: userID, Kind: EventDocument, Document: &doc, Text: doc.Caption, Timestamp: time.Now()}
}
