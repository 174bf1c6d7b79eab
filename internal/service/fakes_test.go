package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/proxy"
)

type memoryLineStore struct {
	mu    sync.Mutex
	lines map[uuid.UUID]*models.PaymentLine
}

func newMemoryLineStore() *memoryLineStore {
	return &memoryLineStore{lines: make(map[uuid.UUID]*models.PaymentLine)}
}

func (s *memoryLineStore) add(amount string, status models.LineStatus) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.lines[id] = &models.PaymentLine{
		ID:        id,
		OrderID:   "order-1",
		Amount:    decimal.RequireFromString(amount),
		Status:    status,
		UpdatedAt: time.Now(),
	}
	return id
}

func (s *memoryLineStore) GetLine(_ context.Context, id uuid.UUID) (*models.PaymentLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	if !ok {
		return nil, models.ErrLineNotFound
	}
	cp := *line
	return &cp, nil
}

func (s *memoryLineStore) TransitionLine(_ context.Context, id uuid.UUID, from []models.LineStatus, to models.LineStatus, settlement *models.Settlement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line, ok := s.lines[id]
	if !ok {
		return 0, models.ErrLineNotFound
	}
	if !contains(from, line.Status) {
		return 0, nil
	}
	line.Status = to
	if settlement != nil {
		cp := *settlement
		line.Settlement = &cp
	}
	line.UpdatedAt = time.Now()
	return 1, nil
}

func (s *memoryLineStore) status(t *testing.T, id uuid.UUID) models.LineStatus {
	t.Helper()
	line, err := s.GetLine(context.Background(), id)
	require.NoError(t, err)
	return line.Status
}

type fakeReply struct {
	raw string
	err error
}

// scriptedBackend answers each operation from a queue of replies; the last
// reply of a queue is repeated. Unscripted operations answer {"success":true}.
type scriptedBackend struct {
	mu      sync.Mutex
	replies map[string][]fakeReply
	calls   []string
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{replies: make(map[string][]fakeReply)}
}

func (b *scriptedBackend) reply(operation, raw string) *scriptedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[operation] = append(b.replies[operation], fakeReply{raw: raw})
	return b
}

func (b *scriptedBackend) fail(operation string, err error) *scriptedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[operation] = append(b.replies[operation], fakeReply{err: err})
	return b
}

func (b *scriptedBackend) Call(_ context.Context, _, operation string, _ any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, operation)

	queue := b.replies[operation]
	if len(queue) == 0 {
		return json.RawMessage(`{"success":true}`), nil
	}
	next := queue[0]
	if len(queue) > 1 {
		b.replies[operation] = queue[1:]
	}
	if next.err != nil {
		return nil, next.err
	}
	return json.RawMessage(next.raw), nil
}

func (b *scriptedBackend) callCount(operation string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, op := range b.calls {
		if op == operation {
			n++
		}
	}
	return n
}

func (b *scriptedBackend) totalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (a *recordingAlerter) Alert(_ context.Context, alert models.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert)
}

func (a *recordingAlerter) titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	titles := make([]string, 0, len(a.alerts))
	for _, alert := range a.alerts {
		titles = append(titles, alert.Title)
	}
	return titles
}

type recordingPublisher struct {
	mu          sync.Mutex
	transitions []models.LineTransition
}

func (p *recordingPublisher) PublishLineTransition(_ context.Context, transition models.LineTransition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, transition)
	return nil
}

// memoryLocker behaves like a SetNX lock without expiry.
type memoryLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[uuid.UUID]bool)}
}

func (l *memoryLocker) Acquire(_ context.Context, lineID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lineID] {
		return nil, models.ErrLineLocked
	}
	l.held[lineID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, lineID)
	}, nil
}

func (l *memoryLocker) isHeld(lineID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[lineID]
}

var errUnreachable = errors.New("dial tcp: connection refused")

type terminalFixture struct {
	store     *memoryLineStore
	backend   *scriptedBackend
	alerter   *recordingAlerter
	publisher *recordingPublisher
	locker    *memoryLocker
	terminal  *Terminal
}

func newTerminalFixture(t *testing.T) *terminalFixture {
	t.Helper()
	f := &terminalFixture{
		store:     newMemoryLineStore(),
		backend:   newScriptedBackend(),
		alerter:   &recordingAlerter{},
		publisher: &recordingPublisher{},
		locker:    newMemoryLocker(),
	}
	f.terminal = NewTerminal(TerminalOptions{
		MethodID:   "clover",
		DeviceID:   "device-1",
		MerchantID: "merchant-1",
		Client:     proxy.NewClient(f.backend, nil, "clover", "device-1"),
		Store:      f.store,
		Publisher:  f.publisher,
		Alerter:    f.alerter,
		Locker:     f.locker,
	})
	t.Cleanup(f.terminal.Close)
	return f
}

func testOrder() models.Order {
	return models.Order{ID: "order-1", Name: "Table 4", SessionID: "session-7", Currency: "usd"}
}
