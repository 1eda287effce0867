// Package chatctx keeps per-(user, topic) conversation histories and builds
// the windowed message lists sent to model backends.
//
// A user has at most one active history. Histories are partitioned by user:
// the top-level map is locked only to find or insert a user's bucket, and
// each bucket has its own mutex, so users never contend with each other.
package chatctx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/scoutbot/internal/llm"
	"github.com/soyeahso/scoutbot/internal/logging"
)

// Message is one stored turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// History is the ordered message log for one (user, topic).
type History struct {
	Topic         string    `json:"topic"`
	Messages      []Message `json:"messages"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
	DeactivatedAt time.Time `json:"deactivatedAt,omitempty"`
}

// NotFoundError is returned when no history exists for (user, topic).
type NotFoundError struct {
	UserID string
	Topic  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chatctx: no history for user %s topic %q", e.UserID, e.Topic)
}

// InactiveSessionError is returned when writing to a deactivated history.
type InactiveSessionError struct {
	UserID string
	Topic  string
}

func (e *InactiveSessionError) Error() string {
	return fmt.Sprintf("chatctx: history for user %s topic %q is inactive", e.UserID, e.Topic)
}

type userBucket struct {
	mu        sync.Mutex
	histories map[string]*History // topic → history
	dead      bool                // removed from Manager.users by Cleanup
}

// Manager is the context window manager.
type Manager struct {
	mu    sync.Mutex
	users map[string]*userBucket
	grace time.Duration
	now   func() time.Time
	log   *logging.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. Inactive histories are reclaimed by Cleanup
// once they have been inactive for at least grace.
func NewManager(grace time.Duration, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		users: make(map[string]*userBucket),
		grace: grace,
		now:   time.Now,
		log:   log.Sub("chatctx"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// bucket returns the user's bucket, creating it when create is set.
func (m *Manager) bucket(userID string, create bool) *userBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.users[userID]
	if !ok && create {
		b = &userBucket{histories: make(map[string]*History)}
		m.users[userID] = b
	}
	return b
}

// StartChat deactivates any active history for the user and creates a new
// active history for topic seeded with the system prompt. An existing
// history for the same topic is replaced.
func (m *Manager) StartChat(userID, topic, systemPrompt string) {
	var b *userBucket
	for {
		b = m.bucket(userID, true)
		b.mu.Lock()
		if !b.dead {
			break
		}
		b.mu.Unlock()
	}
	defer b.mu.Unlock()

	now := m.now()
	for _, h := range b.histories {
		if h.Active {
			h.Active = false
			h.DeactivatedAt = now
		}
	}
	b.histories[topic] = &History{
		Topic:     topic,
		Active:    true,
		CreatedAt: now,
		Messages:  []Message{{Role: llm.RoleSystem, Content: systemPrompt, CreatedAt: now}},
	}
	m.log.Debug().Str("user", userID).Str("topic", topic).Msg("chat started")
}

// AddMessage appends a message to an active history.
func (m *Manager) AddMessage(userID, topic, role, content string) error {
	b := m.bucket(userID, false)
	if b == nil {
		return &NotFoundError{UserID: userID, Topic: topic}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.histories[topic]
	if !ok {
		return &NotFoundError{UserID: userID, Topic: topic}
	}
	if !h.Active {
		return &InactiveSessionError{UserID: userID, Topic: topic}
	}
	h.Messages = append(h.Messages, Message{Role: role, Content: content, CreatedAt: m.now()})
	return nil
}

// MessagesForModel returns the history formatted for a backend call. With
// limit 0 the full history is returned. Otherwise only the last limit
// non-system messages are kept, oldest first, prefixed by the system
// messages unless skipSystemPrompt is set.
func (m *Manager) MessagesForModel(userID, topic string, limit int, skipSystemPrompt bool) ([]llm.Message, error) {
	b := m.bucket(userID, false)
	if b == nil {
		return nil, &NotFoundError{UserID: userID, Topic: topic}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.histories[topic]
	if !ok {
		return nil, &NotFoundError{UserID: userID, Topic: topic}
	}

	var system, rest []llm.Message
	for _, msg := range h.Messages {
		lm := llm.Message{Role: msg.Role, Content: msg.Content}
		if msg.Role == llm.RoleSystem {
			system = append(system, lm)
			continue
		}
		rest = append(rest, lm)
	}

	if limit == 0 && !skipSystemPrompt {
		out := make([]llm.Message, 0, len(h.Messages))
		for _, msg := range h.Messages {
			out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
		}
		return out, nil
	}

	if limit > 0 && len(rest) > limit {
		rest = rest[len(rest)-limit:]
	}
	out := make([]llm.Message, 0, len(system)+len(rest))
	if !skipSystemPrompt {
		out = append(out, system...)
	}
	return append(out, rest...), nil
}

// History returns a copy of the history for (user, topic).
func (m *Manager) History(userID, topic string) (History, error) {
	b := m.bucket(userID, false)
	if b == nil {
		return History{}, &NotFoundError{UserID: userID, Topic: topic}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.histories[topic]
	if !ok {
		return History{}, &NotFoundError{UserID: userID, Topic: topic}
	}
	cp := *h
	cp.Messages = append([]Message(nil), h.Messages...)
	return cp, nil
}

// ActiveTopic returns the topic of the user's active history, if any.
func (m *Manager) ActiveTopic(userID string) (string, bool) {
	b := m.bucket(userID, false)
	if b == nil {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, h := range b.histories {
		if h.Active {
			return topic, true
		}
	}
	return "", false
}

// EndChat deactivates the history for (user, topic). Memory is reclaimed
// later by Cleanup.
func (m *Manager) EndChat(userID, topic string) error {
	b := m.bucket(userID, false)
	if b == nil {
		return &NotFoundError{UserID: userID, Topic: topic}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.histories[topic]
	if !ok {
		return &NotFoundError{UserID: userID, Topic: topic}
	}
	if h.Active {
		h.Active = false
		h.DeactivatedAt = m.now()
	}
	return nil
}

// EndActive deactivates whatever history is active for the user.
// Returns false when none was active.
func (m *Manager) EndActive(userID string) bool {
	b := m.bucket(userID, false)
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	ended := false
	for _, h := range b.histories {
		if h.Active {
			h.Active = false
			h.DeactivatedAt = m.now()
			ended = true
		}
	}
	return ended
}

// Cleanup removes histories inactive for at least the grace period and
// drops users left with no histories. Returns the number removed.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	users := make(map[string]*userBucket, len(m.users))
	for id, b := range m.users {
		users[id] = b
	}
	m.mu.Unlock()

	now := m.now()
	removed := 0
	var empty []string
	for id, b := range users {
		b.mu.Lock()
		for topic, h := range b.histories {
			if !h.Active && now.Sub(h.DeactivatedAt) >= m.grace {
				delete(b.histories, topic)
				removed++
			}
		}
		if len(b.histories) == 0 {
			empty = append(empty, id)
		}
		b.mu.Unlock()
	}

	if len(empty) > 0 {
		m.mu.Lock()
		for _, id := range empty {
			// a StartChat may have refilled it since the first pass
			if b, ok := m.users[id]; ok {
				b.mu.Lock()
				if len(b.histories) == 0 {
					b.dead = true
					delete(m.users, id)
				}
				b.mu.Unlock()
			}
		}
		m.mu.Unlock()
	}

	if removed > 0 {
		m.log.Debug().Int("removed", removed).Msg("reclaimed inactive histories")
	}
	return removed
}

// Users returns the number of users with stored histories.
func (m *Manager) Users() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}
