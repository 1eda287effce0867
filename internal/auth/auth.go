// Package auth decides who may use the bot and where their reports are mailed.
package auth

import (
	"context"
	"sync"

	"github.com/soyeahso/scoutbot/internal/config"
)

// Directory is the authorization collaborator.
type Directory interface {
	IsAuthorized(ctx context.Context, userID string) (bool, error)
	ResolveContactEmail(ctx context.Context, userID string) (email string, found bool, err error)
}

// Granter is implemented by directories that admins can change at runtime.
type Granter interface {
	Grant(ctx context.Context, userID string) error
	Revoke(ctx context.Context, userID string) error
}

// Static is an in-memory directory seeded from config. Grants are lost on
// restart.
type Static struct {
	mu     sync.RWMutex
	users  map[string]bool
	emails map[string]string
}

// NewStatic builds a directory from the configured users. Admins and the
// operator are always authorized.
func NewStatic(cfg config.AuthConfig, dlg config.DialogueConfig) *Static {
	s := &Static{
		users:  make(map[string]bool),
		emails: make(map[string]string),
	}
	for _, id := range cfg.Users {
		s.users[id] = true
	}
	for _, id := range dlg.Admins {
		s.users[id] = true
	}
	if dlg.Operator != "" {
		s.users[dlg.Operator] = true
	}
	for id, email := range cfg.Emails {
		s.emails[id] = email
	}
	return s
}

// IsAuthorized implements Directory.
func (s *Static) IsAuthorized(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID], nil
}

// ResolveContactEmail implements Directory.
func (s *Static) ResolveContactEmail(_ context.Context, userID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email, ok := s.emails[userID]
	return email, ok && email != "", nil
}

// Grant implements Granter.
func (s *Static) Grant(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = true
	return nil
}

// Revoke implements Granter.
func (s *Static) Revoke(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Count returns the number of authorized users.
func (s *Static) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
