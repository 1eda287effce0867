package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/scoutbot/internal/domain"
)

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-1", MethodChatEvent, ChatEventParams{Kind: "text", Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "chat.event", frame.Method)
	assert.JSONEq(t, `{"kind":"text","text":"hello"}`, string(frame.Params))
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", map[string]bool{"accepted": true})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)
	assert.JSONEq(t, `{"accepted":true}`, string(frame.Payload))
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-1", ErrorShape{Code: "unauthorized", Message: "token_mismatch"})

	require.NotNil(t, frame.OK)
	assert.False(t, *frame.OK)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "unauthorized", frame.Error.Code)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "retryable")
	assert.NotContains(t, string(data), "payload")
}

func TestNewEvent(t *testing.T) {
	frame, err := NewEvent(EventChatAction, map[string]string{"kind": "send_text"}, 7)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, "chat.action", frame.Event)
	assert.Equal(t, int64(7), frame.Seq)
	assert.Empty(t, frame.ID)
}

func TestChatEventParams_DocumentIsBase64(t *testing.T) {
	raw := `{"kind":"document","document":{"filename":"brief.txt","data":"aGVsbG8="}}`

	var p ChatEventParams
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.NotNil(t, p.Document)
	assert.Equal(t, "brief.txt", p.Document.Filename)
	assert.Equal(t, []byte("hello"), p.Document.Data)
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{MinProtocol: 1, MaxProtocol: 1, Client: ClientInfo{ID: "tab-1"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestChatEventParams_Event(t *testing.T) {
	const user = "web:tab-1"

	ev, err := ChatEventParams{Text: "Analyze Acme"}.Event(user)
	require.NoError(t, err)
	assert.Equal(t, domain.EventText, ev.Kind)
	assert.Equal(t, "Analyze Acme", ev.Text)
	assert.Equal(t, user, ev.UserID)

	ev, err = ChatEventParams{Kind: "command", Command: "/model", Arg: "gemini"}.Event(user)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCommand, ev.Kind)
	assert.Equal(t, "model", ev.Command)
	assert.Equal(t, "gemini", ev.Arg)

	ev, err = ChatEventParams{Kind: "command", Command: "reset"}.Event(user)
	require.NoError(t, err)
	assert.Equal(t, "reset", ev.Command)
	assert.Empty(t, ev.Arg)

	ev, err = ChatEventParams{Kind: "button", Button: string(domain.ButtonTopic), Arg: "market"}.Event(user)
	require.NoError(t, err)
	assert.Equal(t, domain.ButtonTopic, ev.Button)
	assert.Equal(t, "market", ev.Arg)

	ev, err = ChatEventParams{Kind: "document", Text: "brief", Document: &domain.Document{Filename: "a.txt"}}.Event(user)
	require.NoError(t, err)
	require.NotNil(t, ev.Document)
	assert.Equal(t, "brief", ev.Document.Caption)
	assert.Equal(t, "brief", ev.Text)
}

func TestChatEventParams_EventRejects(t *testing.T) {
	for name, p := range map[string]ChatEventParams{
		"blank text":    {Kind: "text", Text: "  "},
		"bare slash":    {Kind: "command", Command: "/"},
		"no button":     {Kind: "button"},
		"no document":   {Kind: "document"},
		"nameless file": {Kind: "document", Document: &domain.Document{}},
		"unknown kind":  {Kind: "sticker"},
	} {
		_, err := p.Event("web:x")
		assert.Error(t, err, name)
	}
}

func TestFrame_ErrAndDecodeParams(t *testing.T) {
	failed := NewErrorResponse("r1", ErrorShape{Code: "unauthorized", Message: "token_missing"})
	require.Error(t, failed.Err())
	assert.Equal(t, "unauthorized: token_missing", failed.Err().Error())

	ok, err := NewResponse("r1", nil)
	require.NoError(t, err)
	assert.NoError(t, ok.Err())

	req, err := NewRequest("r2", MethodChatEvent, ChatEventParams{Kind: "text", Text: "hi"})
	require.NoError(t, err)
	var p ChatEventParams
	require.NoError(t, req.DecodeParams(&p))
	assert.Equal(t, "hi", p.Text)

	p = ChatEventParams{Text: "kept"}
	require.NoError(t, Frame{Type: FrameTypeRequest}.DecodeParams(&p))
	assert.Equal(t, "kept", p.Text)
}
