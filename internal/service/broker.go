package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

// Waiter is a one-shot handle for the outcome of one payment initiation.
type Waiter struct {
	lineID    uuid.UUID
	done      chan models.TerminalResponse
	once      sync.Once
	cancelled bool
}

func (w *Waiter) LineID() uuid.UUID { return w.lineID }

// Done yields exactly one outcome.
func (w *Waiter) Done() <-chan models.TerminalResponse { return w.done }

func (w *Waiter) deliver(resp models.TerminalResponse) {
	w.once.Do(func() {
		w.done <- resp
	})
}

// Resolution describes what a call to Broker.Resolve did.
type Resolution struct {
	Applied   bool
	Delivered bool
}

// Broker correlates payment lines with their eventual outcome, whether it
// comes back with the sale reply or later through a notification.
type Broker struct {
	lines *LineStateMachine

	// resolveMu serializes resolutions so the applied transition and the
	// delivered outcome always belong to the same call.
	resolveMu sync.Mutex

	mu      sync.Mutex
	waiters map[uuid.UUID]*Waiter
	closed  bool
}

func NewBroker(lines *LineStateMachine) *Broker {
	return &Broker{
		lines:   lines,
		waiters: make(map[uuid.UUID]*Waiter),
	}
}

// Register parks a waiter for the line. A second registration for the same
// line is rejected with ErrWaiterExists, unless the operator cancelled the
// first one: that waiter then resolves as cancelled and is replaced.
func (b *Broker) Register(lineID uuid.UUID) (*Waiter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, models.ErrSessionClosed
	}
	if prev, ok := b.waiters[lineID]; ok {
		if !prev.cancelled {
			telemetry.Logger.Warn("Rejected second initiation for payment line", telemetry.LineID(lineID))
			return nil, models.ErrWaiterExists
		}
		delete(b.waiters, lineID)
		telemetry.PendingWaiters.Dec()
		prev.deliver(models.Cancelled("replaced by a new payment request"))
	}

	w := &Waiter{lineID: lineID, done: make(chan models.TerminalResponse, 1)}
	b.waiters[lineID] = w
	telemetry.PendingWaiters.Inc()
	return w, nil
}

// Release drops the waiter if it is still registered. The line keeps its
// status; a later notification updates it directly.
func (b *Broker) Release(w *Waiter) {
	if b.take(w.lineID, w) != nil {
		telemetry.Logger.Info("Confirmation wait abandoned", telemetry.LineID(w.lineID))
	}
}

func (b *Broker) Outstanding(lineID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.waiters[lineID]
	return ok
}

// MarkCancelled records an operator cancel for an outstanding wait. A late
// success for that wait still settles the line.
func (b *Broker) MarkCancelled(lineID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.waiters[lineID]
	if ok {
		w.cancelled = true
	}
	return ok
}

func (b *Broker) take(lineID uuid.UUID, expected *Waiter) *Waiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.waiters[lineID]
	if !ok || (expected != nil && w != expected) {
		return nil
	}
	delete(b.waiters, lineID)
	telemetry.PendingWaiters.Dec()
	return w
}

func (b *Broker) peek(lineID uuid.UUID) (*Waiter, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.waiters[lineID]
	if !ok {
		return nil, false
	}
	return w, w.cancelled
}

// Resolve is the single entry point for the synchronous and the notification
// paths. It applies the transition the outcome drives and hands the outcome to
// the waiter, if one is registered. Resolving an already settled line is a no-op.
func (b *Broker) Resolve(ctx context.Context, lineID uuid.UUID, resp models.TerminalResponse) (Resolution, error) {
	b.resolveMu.Lock()
	defer b.resolveMu.Unlock()

	next, ok := resp.NextStatus()
	if !ok {
		return Resolution{}, nil
	}

	if resp.Kind == models.KindPending {
		applied, err := b.lines.Transition(ctx, lineID, next, nil, "terminal reported pending", models.StatusRequesting)
		return Resolution{Applied: applied}, err
	}

	w, cancelled := b.peek(lineID)
	from := []models.LineStatus{models.StatusRequesting, models.StatusWaitingConfirmation}
	if cancelled && resp.Kind == models.KindSuccess {
		from = append(from, models.StatusRetry)
	}

	applied, err := b.lines.Transition(ctx, lineID, next, resp.Settlement, "terminal reported "+string(resp.Kind), from...)
	if err != nil {
		return Resolution{}, err
	}
	if !applied && w == nil {
		telemetry.Logger.Info("Duplicate resolution ignored",
			telemetry.LineID(lineID),
			zap.String("kind", string(resp.Kind)),
		)
		return Resolution{}, nil
	}

	res := Resolution{Applied: applied}
	if w != nil && b.take(lineID, w) != nil {
		w.deliver(resp)
		res.Delivered = true
	}
	return res, nil
}

// Close resolves every outstanding waiter with a cancelled outcome and
// refuses further registrations.
func (b *Broker) Close() {
	b.mu.Lock()
	waiters := b.waiters
	b.waiters = make(map[uuid.UUID]*Waiter)
	b.closed = true
	b.mu.Unlock()

	for _, w := range waiters {
		telemetry.PendingWaiters.Dec()
		w.deliver(models.Cancelled("payment session closed"))
	}
}
