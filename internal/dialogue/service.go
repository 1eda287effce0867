package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/logging"
)

// DefaultTimeout bounds the handling of one event, pipeline runs included.
const DefaultTimeout = 10 * time.Minute

// Sender delivers an action to a user id. channel.Registry implements it.
type Sender interface {
	Send(ctx context.Context, to string, action domain.Action) error
}

// ServiceOptions tune a Service.
type ServiceOptions struct {
	Blocked []string
	Timeout time.Duration
}

// Service owns the sessions. Events of one user are handled one at a time;
// different users never wait for each other.
type Service struct {
	machine *Machine
	sender  Sender
	blocked map[string]bool
	timeout time.Duration
	log     *logging.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu       sync.Mutex // serializes events; guards session, seen and dead
	session  *Session
	seen     time.Time
	dead     bool // pruned; the holder must look the entry up again
	abortMu  sync.Mutex
	aborting bool
	cancel   context.CancelFunc
}

// NewService creates a service around machine.
func NewService(machine *Machine, sender Sender, opts ServiceOptions, log *logging.Logger) *Service {
	s := &Service{
		machine: machine,
		sender:  sender,
		blocked: make(map[string]bool),
		timeout: opts.Timeout,
		log:     log.Sub("dialogue"),
		entries: make(map[string]*entry),
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	for _, id := range opts.Blocked {
		s.blocked[id] = true
	}
	return s
}

// Dispatch handles one inbound event and delivers the resulting actions. It
// blocks while an earlier event of the same user is being handled, except
// that /start and /reset first cancel whatever is in flight.
func (s *Service) Dispatch(ctx context.Context, ev domain.Event) error {
	if ev.UserID == "" {
		return fmt.Errorf("event without user id")
	}
	if s.blocked[ev.UserID] {
		s.log.Debug().Str("user", ev.UserID).Msg("dropping event from blocked user")
		return nil
	}

	reset := ev.Kind == domain.EventCommand && (ev.Command == "start" || ev.Command == "reset")
	for {
		e := s.entry(ev.UserID)
		if reset {
			e.abort()
		}
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		if reset {
			e.clearAbort()
		}
		err := s.process(ctx, e, ev)
		e.seen = time.Now()
		e.mu.Unlock()
		return err
	}
}

// process runs the machine for ev and, when it enters the running state, for
// the follow-up run event. Actions are delivered before the run starts so
// the user sees the progress message.
func (s *Service) process(ctx context.Context, e *entry, ev domain.Event) error {
	sess := e.session
	err := s.handle(ctx, e, ev)
	if sess.State != StateRunningPipeline {
		return err
	}
	run := domain.Event{UserID: sess.UserID, Kind: domain.EventRun, Timestamp: time.Now()}
	return errors.Join(err, s.handle(ctx, e, run))
}

func (s *Service) handle(ctx context.Context, e *entry, ev domain.Event) error {
	hctx, ok := e.begin(ctx, s.timeout)
	if !ok {
		// a reset is queued behind us
		return nil
	}
	defer e.end()

	start := time.Now()
	state, actions := s.machine.Handle(hctx, e.session, ev)
	s.log.Debug().
		Str("user", ev.UserID).
		Str("event", string(ev.Kind)).
		Str("state", string(state)).
		Int("actions", len(actions)).
		Dur("took", time.Since(start)).
		Msg("event handled")
	return s.deliver(ctx, ev.UserID, actions)
}

// deliver sends actions in order. A failed action is logged and the rest
// are still attempted.
func (s *Service) deliver(ctx context.Context, userID string, actions []domain.Action) error {
	var errs []error
	for _, a := range actions {
		to := a.To
		if to == "" {
			to = userID
		}
		if err := s.sender.Send(ctx, to, a); err != nil {
			s.log.Warn().Err(err).Str("to", to).Str("kind", string(a.Kind)).Msg("action delivery failed")
			errs = append(errs, fmt.Errorf("%s to %s: %w", a.Kind, to, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) entry(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{session: NewSession(userID), seen: time.Now()}
		s.entries[userID] = e
	}
	return e
}

// State returns the current state of a user's session.
func (s *Service) State(userID string) (State, bool) {
	s.mu.Lock()
	e, ok := s.entries[userID]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.State, true
}

// Sessions returns the number of tracked sessions.
func (s *Service) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Prune forgets sessions idle for longer than maxIdle. Busy sessions are
// skipped. Returns the number removed.
func (s *Service) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.seen.Before(cutoff) {
			e.dead = true
			delete(s.entries, id)
			n++
		}
		e.mu.Unlock()
	}
	if n > 0 {
		s.log.Debug().Int("removed", n).Msg("pruned idle sessions")
	}
	return n
}

// Run prunes idle sessions every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Prune(maxIdle)
		}
	}
}

// begin derives the handling context. ok is false when a reset has asked
// the entry to stop.
func (e *entry) begin(ctx context.Context, timeout time.Duration) (context.Context, bool) {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	if e.aborting {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	e.cancel = cancel
	return ctx, true
}

func (e *entry) end() {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// abort cancels the in-flight handling and makes queued runs skip.
func (e *entry) abort() {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	e.aborting = true
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *entry) clearAbort() {
	e.abortMu.Lock()
	defer e.abortMu.Unlock()
	e.aborting = false
}
