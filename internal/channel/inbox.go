package channel

import (
	"context"
	"sync"

	"github.com/soyeahso/scoutbot/internal/domain"
	"github.com/soyeahso/scoutbot/internal/logging"
)

// Dispatcher handles one event. dialogue.Service implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) error
}

// Inbox keeps the events of each user in arrival order without letting a
// slow user hold up the transport's read loop. Every user with pending
// events gets one worker goroutine; it exits when the queue drains.
//
// /start and /reset skip the queue so they can cancel a running analysis.
type Inbox struct {
	d   Dispatcher
	log *logging.Logger

	mu     sync.Mutex
	queues map[string][]domain.Event
	wg     sync.WaitGroup
}

// NewInbox creates an inbox feeding d.
func NewInbox(d Dispatcher, log *logging.Logger) *Inbox {
	return &Inbox{
		d:      d,
		log:    log.Sub("inbox"),
		queues: make(map[string][]domain.Event),
	}
}

// Post enqueues ev and returns immediately.
func (in *Inbox) Post(ctx context.Context, ev domain.Event) {
	if isReset(ev) {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			in.dispatch(ctx, ev)
		}()
		return
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	q, busy := in.queues[ev.UserID]
	in.queues[ev.UserID] = append(q, ev)
	if !busy {
		in.wg.Add(1)
		go in.drain(ctx, ev.UserID)
	}
}

func (in *Inbox) drain(ctx context.Context, userID string) {
	defer in.wg.Done()
	for {
		in.mu.Lock()
		q := in.queues[userID]
		if len(q) == 0 {
			delete(in.queues, userID)
			in.mu.Unlock()
			return
		}
		ev := q[0]
		in.queues[userID] = q[1:]
		in.mu.Unlock()

		in.dispatch(ctx, ev)
	}
}

func (in *Inbox) dispatch(ctx context.Context, ev domain.Event) {
	if err := in.d.Dispatch(ctx, ev); err != nil {
		in.log.Warn().Err(err).Str("user", ev.UserID).Str("event", string(ev.Kind)).Msg("event dispatch failed")
	}
}

// Pending returns the number of queued events of userID.
func (in *Inbox) Pending(userID string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queues[userID])
}

// Wait blocks until every worker has finished.
func (in *Inbox) Wait() {
	in.wg.Wait()
}

func isReset(ev domain.Event) bool {
	return ev.Kind == domain.EventCommand && (ev.Command == "start" || ev.Command == "reset")
}
