package chatctx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/scoutbot/internal/llm"
	"github.com/soyeahso/scoutbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(grace time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(grace, silentLog(), WithClock(clock.Now)), clock
}

func TestStartChat_SingleActive(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.StartChat("irc:alice", "investment", "sys A")
	m.StartChat("irc:alice", "market", "sys B")

	topic, ok := m.ActiveTopic("irc:alice")
	require.True(t, ok)
	assert.Equal(t, "market", topic)

	old, err := m.History("irc:alice", "investment")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.False(t, old.DeactivatedAt.IsZero())

	active := 0
	for _, topic := range []string{"investment", "market"} {
		h, err := m.History("irc:alice", topic)
		require.NoError(t, err)
		if h.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestStartChat_SeedsSystemMessage(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.StartChat("u:1", "investment", "you are an analyst")

	h, err := m.History("u:1", "investment")
	require.NoError(t, err)
	require.Len(t, h.Messages, 1)
	assert.Equal(t, llm.RoleSystem, h.Messages[0].Role)
	assert.Equal(t, "you are an analyst", h.Messages[0].Content)
}

func TestAddMessage_Errors(t *testing.T) {
	m, _ := newTestManager(time.Minute)

	err := m.AddMessage("u:1", "investment", llm.RoleUser, "hi")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "u:1", nf.UserID)

	m.StartChat("u:1", "investment", "sys")
	err = m.AddMessage("u:1", "market", llm.RoleUser, "hi")
	assert.ErrorAs(t, err, &nf)

	require.NoError(t, m.EndChat("u:1", "investment"))
	err = m.AddMessage("u:1", "investment", llm.RoleUser, "hi")
	var inactive *InactiveSessionError
	assert.ErrorAs(t, err, &inactive)
}

func TestMessagesForModel_RoundTrip(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.StartChat("u:1", "investment", "sys")
	for i := 0; i < 5; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		require.NoError(t, m.AddMessage("u:1", "investment", role, fmt.Sprintf("m%d", i)))
	}

	msgs, err := m.MessagesForModel("u:1", "investment", 0, false)
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), msgs[i+1].Content)
	}
}

func TestMessagesForModel_Window(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.StartChat("u:1", "investment", "sys")
	for i := 0; i < 6; i++ {
		require.NoError(t, m.AddMessage("u:1", "investment", llm.RoleUser, fmt.Sprintf("m%d", i)))
	}

	tests := []struct {
		name       string
		limit      int
		skipSystem bool
		want       []string
	}{
		{"last three with system", 3, false, []string{"sys", "m3", "m4", "m5"}},
		{"last three without system", 3, true, []string{"m3", "m4", "m5"}},
		{"limit larger than history", 10, true, []string{"m0", "m1", "m2", "m3", "m4", "m5"}},
		{"full without system", 0, true, []string{"m0", "m1", "m2", "m3", "m4", "m5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := m.MessagesForModel("u:1", "investment", tt.limit, tt.skipSystem)
			require.NoError(t, err)
			got := make([]string, len(msgs))
			for i, msg := range msgs {
				got[i] = msg.Content
				if tt.skipSystem {
					assert.NotEqual(t, llm.RoleSystem, msg.Role)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessagesForModel_NotFound(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	_, err := m.MessagesForModel("u:1", "x", 0, false)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestMessagesForModel_InactiveStillReadable(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.StartChat("u:1", "investment", "sys")
	require.NoError(t, m.AddMessage("u:1", "investment", llm.RoleUser, "q"))
	assert.True(t, m.EndActive("u:1"))

	msgs, err := m.MessagesForModel("u:1", "investment", 0, false)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestHistory_ReturnsCopy(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	m.StartChat("u:1", "investment", "sys")
	h, err := m.History("u:1", "investment")
	require.NoError(t, err)
	h.Messages[0].Content = "mutated"

	again, err := m.History("u:1", "investment")
	require.NoError(t, err)
	assert.Equal(t, "sys", again.Messages[0].Content)
}

func TestEndActive(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	assert.False(t, m.EndActive("nobody"))

	m.StartChat("u:1", "investment", "sys")
	assert.True(t, m.EndActive("u:1"))
	assert.False(t, m.EndActive("u:1"))
	_, ok := m.ActiveTopic("u:1")
	assert.False(t, ok)
}

func TestEndChat_NotFound(t *testing.T) {
	m, _ := newTestManager(time.Minute)
	var nf *NotFoundError
	assert.ErrorAs(t, m.EndChat("u:1", "investment"), &nf)
}

func TestCleanup_GracePeriod(t *testing.T) {
	m, clock := newTestManager(time.Minute)
	m.StartChat("u:1", "investment", "sys")
	m.StartChat("u:2", "investment", "sys")
	require.NoError(t, m.EndChat("u:1", "investment"))

	clock.Advance(30 * time.Second)
	assert.Equal(t, 0, m.Cleanup())
	_, err := m.History("u:1", "investment")
	assert.NoError(t, err, "late reads inside the grace period still succeed")

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, m.Cleanup())
	_, err = m.History("u:1", "investment")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	// active histories are never reclaimed
	_, err = m.History("u:2", "investment")
	assert.NoError(t, err)
	assert.Equal(t, 1, m.Users())
}

func TestStartChat_AfterCleanup(t *testing.T) {
	m, clock := newTestManager(0)
	m.StartChat("u:1", "investment", "sys")
	m.EndActive("u:1")
	clock.Advance(time.Second)
	m.Cleanup()
	assert.Equal(t, 0, m.Users())

	m.StartChat("u:1", "market", "sys")
	require.NoError(t, m.AddMessage("u:1", "market", llm.RoleUser, "q"))
}

func TestConcurrentUsers(t *testing.T) {
	m, _ := newTestManager(0)
	var wg sync.WaitGroup
	for u := 0; u < 20; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			uid := fmt.Sprintf("web:%d", u)
			m.StartChat(uid, "investment", "sys")
			for i := 0; i < 50; i++ {
				_ = m.AddMessage(uid, "investment", llm.RoleUser, "x")
			}
			m.Cleanup()
		}(u)
	}
	wg.Wait()

	for u := 0; u < 20; u++ {
		msgs, err := m.MessagesForModel(fmt.Sprintf("web:%d", u), "investment", 0, true)
		require.NoError(t, err)
		assert.Len(t, msgs, 50)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, _ := newTestManager(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&NotFoundError{UserID: "u", Topic: "t"}).Error(), "no history")
	assert.Contains(t, (&InactiveSessionError{UserID: "u", Topic: "t"}).Error(), "inactive")
}
