package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

// recorder returns a handler that appends name to *calls and then returns
// err.
func recorder(calls *[]string, name string, err error) Handler {
	return func(_ context.Context, _ Payload) error {
		*calls = append(*calls, name)
		return err
	}
}

func TestManager_Emit_RunsInOrder(t *testing.T) {
	m := testManager()
	var calls []string
	m.On(EventPipelineDone, "first", recorder(&calls, "first", errors.New("handler broke")))
	m.On(EventPipelineDone, "second", recorder(&calls, "second", nil))
	m.On(EventGatewayStart, "other", recorder(&calls, "other", nil))

	m.Emit(context.Background(), EventPipelineDone, nil)
	// a failing handler does not stop the next one
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NotPanics(t, func() { m.Emit(context.Background(), EventGatewayStop, nil) })
}

func TestManager_Emit_PassesData(t *testing.T) {
	m := testManager()
	var got Payload
	m.On(EventReportDelivered, "t", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventReportDelivered, map[string]any{"user": "irc:alice", "via": "smtp"})
	assert.Equal(t, EventReportDelivered, got.Event)
	assert.Equal(t, map[string]any{"user": "irc:alice", "via": "smtp"}, got.Data)
}

func TestManager_Off(t *testing.T) {
	m := testManager()
	var calls []string
	m.On(EventGatewayStart, "remove-me", recorder(&calls, "remove-me", nil))
	m.On(EventGatewayStart, "keep-me", recorder(&calls, "keep-me", nil))
	m.On(EventGatewayStart, "remove-me", recorder(&calls, "remove-me-too", nil))

	m.Off(EventGatewayStart, "remove-me")
	m.Off(EventGatewayStart, "never-registered")
	m.Emit(context.Background(), EventGatewayStart, nil)
	assert.Equal(t, []string{"keep-me"}, calls)
}

func TestManager_Count(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventGatewayStart))

	m.On(EventGatewayStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventGatewayStart))

	m.On(EventGatewayStart, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventGatewayStart))
}

func TestManager_Events(t *testing.T) {
	m := testManager()

	m.On(EventGatewayStart, "h1", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventPipelineDone, "h2", func(_ context.Context, _ Payload) error { return nil })

	assert.Equal(t, []string{EventGatewayStart, EventPipelineDone}, m.Events())

	m.Off(EventGatewayStart, "h1")
	assert.Equal(t, []string{EventPipelineDone}, m.Events())
}

func TestManager_EmitAsync_Wait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		m.On(EventReportDelivered, name, func(_ context.Context, _ Payload) error {
			time.Sleep(10 * time.Millisecond)
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventReportDelivered, nil)
	m.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestManager_Emit_RecoversPanic(t *testing.T) {
	m := testManager()

	var after bool
	m.On(EventSessionEnd, "boom", func(_ context.Context, _ Payload) error {
		panic("bad handler")
	})
	m.On(EventSessionEnd, "after", func(_ context.Context, _ Payload) error {
		after = true
		return nil
	})

	assert.NotPanics(t, func() { m.Emit(context.Background(), EventSessionEnd, nil) })
	assert.True(t, after)
}

func TestManager_Emit_StampsPayload(t *testing.T) {
	m := testManager()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }

	var got Payload
	m.On(EventSessionStart, "t", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})
	m.Emit(context.Background(), EventSessionStart, map[string]any{"user": "web:tab"})

	assert.Equal(t, at, got.At)
	assert.Equal(t, "web:tab", got.Data["user"])
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventGatewayStart)
	assert.Contains(t, AllEvents, EventPipelineDone)
}

func TestCommandHandler_PayloadOnStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "payload.json")
	h := CommandHandler(config.HookEntry{Command: "cat > " + out})

	err := h(context.Background(), Payload{Event: EventPipelineDone, Data: map[string]any{"user": "irc:bob"}})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pipeline_done","data":{"user":"irc:bob"}}`, string(data))
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "echo broken >&2; exit 3"})

	err := h(context.Background(), Payload{Event: EventSessionEnd})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50})

	start := time.Now()
	err := h(context.Background(), Payload{Event: EventSessionEnd})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommandHandler_TimeoutKillsChildren(t *testing.T) {
	// the shell forks sleep, which holds stderr open
	h := CommandHandler(config.HookEntry{Command: "sleep 5; echo late >&2", Timeout: 50})

	start := time.Now()
	err := h(context.Background(), Payload{Event: EventSessionEnd})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "late")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestManager_WaitBoundedBySlowCommand(t *testing.T) {
	m := testManager()
	m.On(EventReportDelivered, "slow", CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50}))

	start := time.Now()
	m.EmitAsync(context.Background(), EventReportDelivered, nil)
	m.Wait()
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRegisterConfigured(t *testing.T) {
	m := testManager()
	n := RegisterConfigured(m, config.HooksConfig{
		SessionStart:    []config.HookEntry{{Command: "true"}, {Command: "  "}},
		ReportDelivered: []config.HookEntry{{Command: "true"}},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, m.Count(EventSessionStart))
	assert.Equal(t, 1, m.Count(EventReportDelivered))
	assert.Equal(t, 0, m.Count(EventPipelineDone))
}
