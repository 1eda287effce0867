package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/scoutbot/internal/domain"
)

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Method and event names.
const (
	MethodConnect        = "connect"
	MethodHealth         = "health"
	MethodChatEvent      = "chat.event"
	MethodChannelsStatus = "channels.status"

	EventChallenge  = "connect.challenge"
	EventChatAction = "chat.action"
)

// Protocol version supported by this server.
const ProtocolVersion = 1

const maxPayload = 8 * 1024 * 1024

// Frame is the single envelope of the web chat socket. Type says which of
// the field groups is in use: req uses ID, Method and Params; res uses ID,
// OK and either Payload or Error; event uses Event, Seq and Payload.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// ErrorShape is the standard error format in response frames.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Locale      string       `json:"locale,omitempty"`
}

// ClientInfo identifies the connecting client. ID is stable across
// reconnects so a browser tab keeps its dialogue session.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Platform    string `json:"platform,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK is the server's response payload after successful authentication.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
	UserID  string `json:"userId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// ChatEventParams is the payload of a chat.event request. Document data is
// base64 in JSON.
type ChatEventParams struct {
	Kind     string           `json:"kind"`
	Text     string           `json:"text,omitempty"`
	Command  string           `json:"command,omitempty"`
	Button   string           `json:"button,omitempty"`
	Arg      string           `json:"arg,omitempty"`
	Document *domain.Document `json:"document,omitempty"`
}

// Event converts the params into a dialogue event for userID. Commands
// become "/name arg" text lines, which is how every channel delivers them.
func (p ChatEventParams) Event(userID string) (domain.Event, error) {
	switch domain.EventKind(p.Kind) {
	case domain.EventText, "":
		if strings.TrimSpace(p.Text) == "" {
			return domain.Event{}, errors.New("text is required")
		}
		return domain.TextEvent(userID, p.Text), nil
	case domain.EventCommand:
		name := strings.TrimPrefix(strings.TrimSpace(p.Command), "/")
		if name == "" {
			return domain.Event{}, errors.New("command is required")
		}
		return domain.TextEvent(userID, strings.TrimSpace("/"+name+" "+p.Arg)), nil
	case domain.EventButton:
		if p.Button == "" {
			return domain.Event{}, errors.New("button is required")
		}
		return domain.ButtonEvent(userID, domain.ButtonID(p.Button), p.Arg), nil
	case domain.EventDocument:
		if p.Document == nil || p.Document.Filename == "" {
			return domain.Event{}, errors.New("document with filename is required")
		}
		doc := *p.Document
		if doc.Caption == "" {
			doc.Caption = p.Text
		}
		return domain.DocumentEvent(userID, doc), nil
	default:
		return domain.Event{}, fmt.Errorf("unknown event kind %q", p.Kind)
	}
}

// Error makes a failed response usable as a Go error on the client side.
func (e *ErrorShape) Error() string {
	return e.Code + ": " + e.Message
}

// Err returns the response's error, nil for successes and non-responses.
func (f Frame) Err() error {
	if f.Type != FrameTypeResponse || f.Error == nil {
		return nil
	}
	return f.Error
}

// DecodeParams unmarshals request params into v. Absent params leave v
// untouched.
func (f Frame) DecodeParams(v any) error {
	if len(f.Params) == 0 {
		return nil
	}
	return json.Unmarshal(f.Params, v)
}

func marshalRaw(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	return json.RawMessage(raw), err
}

// NewRequest builds a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := marshalRaw(params)
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, err
}

// NewResponse builds a successful response to request id.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := marshalRaw(payload)
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, err
}

// NewErrorResponse builds a failed response to request id.
func NewErrorResponse(id string, shape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &shape}
}

// NewEvent builds a server-pushed event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := marshalRaw(payload)
	return Frame{Type: FrameTypeEvent, Event: event, Seq: seq, Payload: raw}, err
}
