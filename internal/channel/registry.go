// Package channel routes dialogue actions to transports and events from
// transports to the dialogue service.
package channel

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/logging"
)

// Registry holds the transports. The channel prefix of a user id selects
// the transport that reaches the user.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*entry
	log      *logging.Logger
}

// entry is a channel plus what the registry saw of its lifecycle, for
// channels that do not report their own status.
type entry struct {
	ch      domain.Channel
	stopped bool
	exitErr string
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		channels: make(map[string]*entry),
		log:      log.Sub("channels"),
	}
}

// Register adds ch, replacing any channel with the same id.
func (r *Registry) Register(ch domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID()] = &entry{ch: ch}
	r.log.Info().Str("channel", ch.ID()).Interface("caps", ch.Capabilities()).Msg("channel registered")
}

// Get looks a channel up by id.
func (r *Registry) Get(id string) (domain.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.channels[id]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// List returns the channel ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.channels))
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Send delivers action to the user id to. It implements dialogue.Sender.
// Deletes addressed to a channel that cannot retract messages are dropped.
func (r *Registry) Send(ctx context.Context, to string, action domain.Action) error {
	channelID, native, ok := domain.SplitUserID(to)
	if !ok {
		return fmt.Errorf("user id %q has no channel prefix", to)
	}
	ch, found := r.Get(channelID)
	if !found {
		return fmt.Errorf("no channel %q for user %s", channelID, to)
	}
	if action.Kind == domain.ActionDeleteMessage && !ch.Capabilities().Delete {
		return nil
	}
	if err := ch.Send(ctx, native, action); err != nil {
		return fmt.Errorf("%s: %w", channelID, err)
	}
	return nil
}

// Attach forwards the inbound events of every registered channel to in.
func (r *Registry) Attach(ctx context.Context, in *Inbox) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.channels {
		e.ch.OnEvent(func(ev domain.Event) { in.Post(ctx, ev) })
	}
}

type statusReporter interface {
	Status() domain.ChannelStatus
}

// Status reports every channel, sorted by id.
func (r *Registry) Status() []domain.ChannelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ChannelStatus, 0, len(r.channels))
	for _, id := range slices.Sorted(maps.Keys(r.channels)) {
		e := r.channels[id]
		if sr, ok := e.ch.(statusReporter); ok {
			out = append(out, sr.Status())
			continue
		}
		out = append(out, domain.ChannelStatus{
			ChannelID: id,
			Running:   !e.stopped && e.exitErr == "",
			LastError: e.exitErr,
		})
	}
	return out
}

// StartAll launches every channel's Start on its own goroutine; Start
// may block for the life of the connection.
func (r *Registry) StartAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.channels {
		e.stopped, e.exitErr = false, ""
		r.log.Info().Str("channel", id).Msg("starting channel")
		go func() {
			err := e.ch.Start(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}
			r.log.Error().Err(err).Str("channel", id).Msg("channel exited with error")
			r.mu.Lock()
			e.exitErr = err.Error()
			r.mu.Unlock()
		}()
	}
}

// StopAll stops every channel, logging failures. Stop runs without the
// registry lock held.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	stopping := maps.Clone(r.channels)
	for _, e := range stopping {
		e.stopped = true
	}
	r.mu.Unlock()

	for id, e := range stopping {
		r.log.Info().Str("channel", id).Msg("stopping channel")
		if err := e.ch.Stop(ctx); err != nil {
			r.log.Error().Err(err).Str("channel", id).Msg("failed to stop channel")
		}
	}
}
