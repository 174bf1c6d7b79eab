package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/terminal-connector/internal/interfaces"
	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/proxy"
	"github.com/akylbek/payment-system/terminal-connector/internal/telemetry"
)

const courtesyTimeout = 30 * time.Second

// Terminal drives the payment protocol for one payment method and its device.
type Terminal struct {
	methodID   string
	deviceID   string
	merchantID string

	client  *proxy.Client
	store   interfaces.PaymentLineStore
	lines   *LineStateMachine
	broker  *Broker
	alerter interfaces.Alerter
	locker  interfaces.LineLocker

	mu         sync.Mutex
	pending    uuid.UUID
	pendingRef string
	courtesy   sync.WaitGroup
}

var _ interfaces.PaymentTerminal = (*Terminal)(nil)

type TerminalOptions struct {
	MethodID   string
	DeviceID   string
	MerchantID string
	Client     *proxy.Client
	Store      interfaces.PaymentLineStore
	Publisher  interfaces.EventPublisher
	Alerter    interfaces.Alerter
	Locker     interfaces.LineLocker
}

func NewTerminal(opts TerminalOptions) *Terminal {
	lines := NewLineStateMachine(opts.MethodID, opts.Store, opts.Publisher)
	t := &Terminal{
		methodID:   opts.MethodID,
		deviceID:   opts.DeviceID,
		merchantID: opts.MerchantID,
		client:     opts.Client,
		store:      opts.Store,
		lines:      lines,
		broker:     NewBroker(lines),
		alerter:    opts.Alerter,
		locker:     opts.Locker,
	}
	opts.Client.OnConnectivityFailure(t.onConnectivityFailure)
	return t
}

func (t *Terminal) MethodID() string   { return t.methodID }
func (t *Terminal) DeviceID() string   { return t.deviceID }
func (t *Terminal) MerchantID() string { return t.merchantID }

// State is the display-only connectivity of the terminal session.
func (t *Terminal) State() models.SessionState { return t.client.State() }

// PendingLine returns the line whose payment is in flight, if any.
func (t *Terminal) PendingLine() (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending, t.pending != uuid.Nil
}

// setPending records the in-flight line and the external payment id its sale
// carried, so notifications can be matched against it.
func (t *Terminal) setPending(lineID uuid.UUID, ref string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != uuid.Nil && t.pending != lineID {
		telemetry.Logger.Warn("Replacing unresolved pending payment line",
			zap.String("previous_line_id", t.pending.String()),
			telemetry.LineID(lineID),
		)
	}
	t.pending = lineID
	t.pendingRef = ref
}

func (t *Terminal) pendingPayment() (uuid.UUID, string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending, t.pendingRef, t.pending != uuid.Nil
}

func (t *Terminal) clearPending(lineID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == lineID {
		t.pending = uuid.Nil
		t.pendingRef = ""
	}
}

// Initiate sends a sale for the line and returns its outcome. A pending sale
// suspends the caller until a notification resolves it or ctx ends.
func (t *Terminal) Initiate(ctx context.Context, order models.Order, lineID uuid.UUID) (models.TerminalResponse, error) {
	line, err := t.store.GetLine(ctx, lineID)
	if err != nil {
		return models.TerminalResponse{}, err
	}

	req, err := BuildPaymentRequest(order, *line)
	if err != nil {
		t.alert(ctx, lineID, "Invalid amount", "The terminal cannot process a negative amount.")
		return models.TerminalResponse{}, err
	}

	if line.Status != models.StatusInit && line.Status != models.StatusRetry {
		if line.Status.IsInFlight() && t.broker.Outstanding(lineID) {
			return models.TerminalResponse{}, models.ErrWaiterExists
		}
		return models.TerminalResponse{}, fmt.Errorf("%w: line is %s", models.ErrInvalidTransition, line.Status)
	}

	// The lock covers the send phase only. While the line waits for
	// confirmation the broker's waiter table guards it.
	unlock := func() {}
	if t.locker != nil {
		release, err := t.locker.Acquire(ctx, lineID)
		if err != nil {
			return models.TerminalResponse{}, err
		}
		unlock = sync.OnceFunc(release)
	}
	defer unlock()

	waiter, err := t.broker.Register(lineID)
	if err != nil {
		return models.TerminalResponse{}, err
	}
	defer t.broker.Release(waiter)

	ctx = proxy.WithLine(ctx, lineID.String())

	if _, err := t.client.Invoke(ctx, proxy.OpWelcome, nil); err != nil {
		telemetry.Logger.Debug("Welcome screen not shown", telemetry.LineID(lineID), zap.Error(err))
	}

	applied, err := t.lines.Transition(ctx, lineID, models.StatusRequesting, nil, "sale requested", models.StatusInit, models.StatusRetry)
	if err != nil {
		return models.TerminalResponse{}, err
	}
	if !applied {
		return models.TerminalResponse{}, fmt.Errorf("%w: line changed before the sale was sent", models.ErrInvalidTransition)
	}
	t.setPending(lineID, req.ExternalPaymentID)

	raw, err := t.client.Invoke(ctx, proxy.OpSale, req)
	if err != nil {
		resp := models.ConnectivityFailure(err.Error())
		if _, rerr := t.broker.Resolve(context.WithoutCancel(ctx), lineID, resp); rerr != nil {
			telemetry.Logger.Error("Failed to record connectivity failure", telemetry.LineID(lineID), zap.Error(rerr))
		}
		t.clearPending(lineID)
		t.report(ctx, lineID, resp)
		return resp, err
	}

	if _, err := t.broker.Resolve(ctx, lineID, Classify(raw)); err != nil {
		return models.TerminalResponse{}, err
	}
	unlock()

	select {
	case resp := <-waiter.Done():
		t.finish(ctx, lineID, resp)
		return resp, nil
	case <-ctx.Done():
		// The line stays waiting_confirmation; a later notification settles it.
		return models.TerminalResponse{}, ctx.Err()
	}
}

// Cancel asks the terminal to abort the payment and frees the line for a new
// attempt. The terminal's answer is advisory.
func (t *Terminal) Cancel(ctx context.Context, lineID uuid.UUID) error {
	ctx = proxy.WithLine(ctx, lineID.String())

	raw, err := t.client.Invoke(ctx, proxy.OpCancel, nil)
	switch {
	case err != nil:
		t.alert(ctx, lineID, "Cancel failed", "The terminal could not be reached to cancel the payment. Check the terminal before retrying.")
	default:
		if resp := Classify(raw); resp.Kind == models.KindTerminalError {
			t.alert(ctx, lineID, "Cancel failed", operatorMessage(resp))
		}
	}

	t.broker.MarkCancelled(lineID)
	applied, err := t.lines.Transition(context.WithoutCancel(ctx), lineID, models.StatusRetry, nil, "cancelled by operator",
		models.SourcesOf(models.StatusRetry)...)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: line is already settled", models.ErrInvalidTransition)
	}
	return nil
}

// HandleNotification pulls the latest terminal status and resolves the
// pending line with it.
func (t *Terminal) HandleNotification(ctx context.Context) error {
	lineID, ref, ok := t.pendingPayment()
	if !ok {
		telemetry.Logger.Info("Notification received without a pending payment line",
			zap.String("method_id", t.methodID),
		)
		return nil
	}
	ctx = proxy.WithLine(ctx, lineID.String())

	raw, err := t.client.Invoke(ctx, proxy.OpLatestStatus, nil)
	if err != nil {
		return err
	}

	if got := ExternalPaymentID(raw); got != "" && got != ref {
		telemetry.Logger.Warn("Notification belongs to another payment",
			telemetry.LineID(lineID),
			zap.String("external_payment_id", got),
			zap.String("expected_external_payment_id", ref),
		)
		return nil
	}

	resp := Classify(raw)
	res, err := t.broker.Resolve(ctx, lineID, resp)
	if err != nil {
		return err
	}
	// Without a waiter nobody else reports the outcome.
	if res.Applied && !res.Delivered && resp.Kind != models.KindPending {
		t.finish(ctx, lineID, resp)
	}
	return nil
}

// Close tears the session down. Outstanding waits resolve as cancelled.
func (t *Terminal) Close() {
	t.broker.Close()
	t.courtesy.Wait()
}

func (t *Terminal) finish(ctx context.Context, lineID uuid.UUID, resp models.TerminalResponse) {
	if resp.Kind == models.KindCancelled {
		return
	}
	t.clearPending(lineID)
	if resp.Kind == models.KindSuccess {
		t.thankYou(ctx, lineID)
		return
	}
	t.report(ctx, lineID, resp)
}

// thankYou is fire and forget; its failures never reach the line.
func (t *Terminal) thankYou(ctx context.Context, lineID uuid.UUID) {
	t.courtesy.Add(1)
	go func() {
		defer t.courtesy.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), courtesyTimeout)
		defer cancel()
		if _, err := t.client.Invoke(ctx, proxy.OpThankYou, nil); err != nil {
			telemetry.Logger.Debug("Thank you screen not shown", telemetry.LineID(lineID), zap.Error(err))
		}
	}()
}

func (t *Terminal) onConnectivityFailure(ctx context.Context, operation string) {
	lineID, ok := t.PendingLine()
	if !ok {
		return
	}
	_, err := t.lines.Transition(context.WithoutCancel(ctx), lineID, models.StatusRetry, nil,
		"connectivity failure during "+operation, models.StatusRequesting)
	if err != nil {
		telemetry.Logger.Error("Failed to move payment line to retry", telemetry.LineID(lineID), zap.Error(err))
	}
}

func (t *Terminal) report(ctx context.Context, lineID uuid.UUID, resp models.TerminalResponse) {
	var title string
	switch resp.Kind {
	case models.KindDeclined:
		title = "Payment declined"
	case models.KindTerminalError:
		title = "Terminal error"
	case models.KindConnectivityFailure:
		title = "Connection error"
	default:
		return
	}
	t.alert(ctx, lineID, title, operatorMessage(resp))
}

func (t *Terminal) alert(ctx context.Context, lineID uuid.UUID, title, message string) {
	if t.alerter == nil {
		return
	}
	t.alerter.Alert(context.WithoutCancel(ctx), models.Alert{
		MethodID: t.methodID,
		LineID:   lineID.String(),
		Title:    title,
		Message:  message,
	})
}

func operatorMessage(resp models.TerminalResponse) string {
	switch resp.Kind {
	case models.KindConnectivityFailure:
		return "Unable to reach the payment terminal. Check the connection and try again."
	case models.KindDeclined:
		return resp.Message
	case models.KindTerminalError:
		switch resp.Message {
		case msgAuthFailed:
			return "Authentication with the payment terminal failed. Please check the terminal credentials."
		case msgNoResponse, msgMalformed:
			return "The terminal did not return a usable response. Verify the payment on the terminal before retrying."
		}
		return resp.Message
	}
	return ""
}

// IsRetryable reports whether the operator may start a new attempt after err.
func IsRetryable(err error) bool {
	return errors.Is(err, models.ErrConnectivity)
}
