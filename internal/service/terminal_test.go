package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
	"github.com/akylbek/payment-system/terminal-connector/internal/proxy"
)

type initiateResult struct {
	resp models.TerminalResponse
	err  error
}

func initiateAsync(ctx context.Context, term *Terminal, lineID uuid.UUID) <-chan initiateResult {
	out := make(chan initiateResult, 1)
	go func() {
		resp, err := term.Initiate(ctx, testOrder(), lineID)
		out <- initiateResult{resp: resp, err: err}
	}()
	return out
}

func waitForStatus(t *testing.T, store *memoryLineStore, lineID uuid.UUID, want models.LineStatus) {
	t.Helper()
	assert.Eventually(t, func() bool {
		line, err := store.GetLine(context.Background(), lineID)
		return err == nil && line.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTerminal_InitiateSuccess(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"success":true,"payment":{"id":"p1","amount":500,"cardTransaction":{"last4":"4242","type":"VISA"}}}`)

	resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.KindSuccess, resp.Kind)

	line, err := f.store.GetLine(context.Background(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, line.Status)
	require.NotNil(t, line.Settlement)
	assert.Equal(t, "p1", line.Settlement.TransactionID)
	assert.Equal(t, "4242", line.Settlement.CardLastFour)
	assert.Equal(t, "VISA", line.Settlement.CardType)
	assert.True(t, decimal.RequireFromString("5.00").Equal(line.Settlement.Amount))

	f.terminal.Close()
	assert.Equal(t, 1, f.backend.callCount(proxy.OpWelcome))
	assert.Equal(t, 1, f.backend.callCount(proxy.OpSale))
	assert.Equal(t, 1, f.backend.callCount(proxy.OpThankYou))
	assert.Empty(t, f.alerter.titles())
	assert.Equal(t, models.SessionConnected, f.terminal.State())

	_, pending := f.terminal.PendingLine()
	assert.False(t, pending)

	require.Len(t, f.publisher.transitions, 2)
	assert.Equal(t, models.StatusRequesting, f.publisher.transitions[0].To)
	assert.Equal(t, models.StatusDone, f.publisher.transitions[1].To)
}

func TestTerminal_InitiateNegativeAmount(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("-5.00", models.StatusInit)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	assert.Equal(t, 0, f.backend.totalCalls())
	assert.Equal(t, models.StatusInit, f.store.status(t, lineID))
	assert.Equal(t, []string{"Invalid amount"}, f.alerter.titles())
}

func TestTerminal_InitiateUnknownLine(t *testing.T) {
	f := newTerminalFixture(t)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), uuid.New())
	assert.ErrorIs(t, err, models.ErrLineNotFound)
	assert.Equal(t, 0, f.backend.totalCalls())
}

func TestTerminal_InitiateSettledLine(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("1.00", models.StatusDone)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, 0, f.backend.totalCalls())
}

func TestTerminal_PendingThenNotification(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`)
	f.backend.reply(proxy.OpLatestStatus, `{"payment":{"result":"SUCCESS","id":"p1"}}`)

	result := initiateAsync(context.Background(), f.terminal, lineID)
	waitForStatus(t, f.store, lineID, models.StatusWaitingConfirmation)

	pendingID, ok := f.terminal.PendingLine()
	require.True(t, ok)
	assert.Equal(t, lineID, pendingID)

	require.NoError(t, f.terminal.HandleNotification(context.Background()))

	select {
	case r := <-result:
		require.NoError(t, r.err)
		assert.Equal(t, models.KindSuccess, r.resp.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("initiate did not return after notification")
	}

	line, err := f.store.GetLine(context.Background(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, line.Status)
	require.NotNil(t, line.Settlement)
	assert.Equal(t, "p1", line.Settlement.TransactionID)
	assert.Equal(t, "SUCCESS", line.Settlement.Result)

	f.terminal.Close()
	assert.Equal(t, 1, f.backend.callCount(proxy.OpThankYou))
}

func TestTerminal_SecondInitiateWhileWaiting(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`)

	result := initiateAsync(context.Background(), f.terminal, lineID)
	waitForStatus(t, f.store, lineID, models.StatusWaitingConfirmation)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	assert.ErrorIs(t, err, models.ErrWaiterExists)
	assert.Equal(t, 1, f.backend.callCount(proxy.OpSale))

	f.terminal.Close()
	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, models.KindCancelled, r.resp.Kind)
	assert.Equal(t, models.StatusWaitingConfirmation, f.store.status(t, lineID))
}

func TestTerminal_AbandonedWaitSettledByNotification(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`)
	f.backend.reply(proxy.OpLatestStatus, `{"success":false,"message":"Card declined"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.terminal.Initiate(ctx, testOrder(), lineID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.StatusWaitingConfirmation, f.store.status(t, lineID))

	require.NoError(t, f.terminal.HandleNotification(context.Background()))
	assert.Equal(t, models.StatusRetry, f.store.status(t, lineID))
	assert.Equal(t, []string{"Payment declined"}, f.alerter.titles())

	_, pending := f.terminal.PendingLine()
	assert.False(t, pending)
}

func TestTerminal_TransportError(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.fail(proxy.OpSale, errUnreachable)

	resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConnectivity)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, models.KindConnectivityFailure, resp.Kind)

	line, err := f.store.GetLine(context.Background(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRetry, line.Status)
	assert.Nil(t, line.Settlement)

	assert.Equal(t, []string{"Connection error"}, f.alerter.titles())
	assert.Equal(t, models.SessionDisconnected, f.terminal.State())
}

func TestTerminal_RetryAfterTransportError(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.fail(proxy.OpSale, errUnreachable).reply(proxy.OpSale, `{"success":true}`)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.Error(t, err)
	require.Equal(t, models.StatusRetry, f.store.status(t, lineID))

	resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.KindSuccess, resp.Kind)
	assert.Equal(t, models.StatusDone, f.store.status(t, lineID))
}

func TestTerminal_ClassifiedReplies(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantKind   models.ResponseKind
		wantStatus models.LineStatus
		wantAlert  string
	}{
		{name: "empty object", reply: `{}`, wantKind: models.KindTerminalError, wantStatus: models.StatusForceDone, wantAlert: "Terminal error"},
		{name: "auth failure", reply: `{"error":{"status_code":401,"message":"nope"}}`, wantKind: models.KindTerminalError, wantStatus: models.StatusForceDone, wantAlert: "Terminal error"},
		{name: "declined", reply: `{"success":false,"message":"Card declined"}`, wantKind: models.KindDeclined, wantStatus: models.StatusRetry, wantAlert: "Payment declined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTerminalFixture(t)
			lineID := f.store.add("5.00", models.StatusInit)
			f.backend.reply(proxy.OpSale, tt.reply)

			resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.Equal(t, tt.wantStatus, f.store.status(t, lineID))
			assert.Equal(t, []string{tt.wantAlert}, f.alerter.titles())
			assert.Equal(t, 0, f.backend.callCount(proxy.OpThankYou))
		})
	}
}

func TestTerminal_AuthFailureMessage(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"error":{"status_code":401}}`)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.NoError(t, err)

	require.Len(t, f.alerter.alerts, 1)
	assert.Contains(t, f.alerter.alerts[0].Message, "Authentication")
	assert.Equal(t, lineID.String(), f.alerter.alerts[0].LineID)
	assert.Equal(t, "clover", f.alerter.alerts[0].MethodID)
}

func TestTerminal_CourtesyFailuresDoNotAffectLine(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.fail(proxy.OpWelcome, errUnreachable)
	f.backend.fail(proxy.OpThankYou, errUnreachable)

	resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.KindSuccess, resp.Kind)

	f.terminal.Close()
	assert.Equal(t, 1, f.backend.callCount(proxy.OpThankYou))
	assert.Equal(t, models.StatusDone, f.store.status(t, lineID))
	assert.Empty(t, f.alerter.titles())
}

func TestTerminal_CancelIdleLine(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)

	require.NoError(t, f.terminal.Cancel(context.Background(), lineID))
	assert.Equal(t, models.StatusRetry, f.store.status(t, lineID))
	assert.Equal(t, 1, f.backend.callCount(proxy.OpCancel))
}

func TestTerminal_CancelUnreachableStillFreesLine(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusRequesting)
	f.backend.fail(proxy.OpCancel, errUnreachable)

	require.NoError(t, f.terminal.Cancel(context.Background(), lineID))
	assert.Equal(t, models.StatusRetry, f.store.status(t, lineID))
	assert.Equal(t, []string{"Cancel failed"}, f.alerter.titles())
}

func TestTerminal_CancelSettledLine(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusDone)

	err := f.terminal.Cancel(context.Background(), lineID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, models.StatusDone, f.store.status(t, lineID))
}

func TestTerminal_LateSuccessAfterCancel(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`)
	f.backend.reply(proxy.OpLatestStatus, `{"payment":{"id":"p9","result":"SUCCESS"}}`)

	result := initiateAsync(context.Background(), f.terminal, lineID)
	waitForStatus(t, f.store, lineID, models.StatusWaitingConfirmation)

	require.NoError(t, f.terminal.Cancel(context.Background(), lineID))
	assert.Equal(t, models.StatusRetry, f.store.status(t, lineID))

	require.NoError(t, f.terminal.HandleNotification(context.Background()))

	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, models.KindSuccess, r.resp.Kind)
	assert.Equal(t, models.StatusDone, f.store.status(t, lineID))
}

func TestTerminal_ReinitiateAfterCancelReplacesWait(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`).reply(proxy.OpSale, `{"success":true}`)

	first := initiateAsync(context.Background(), f.terminal, lineID)
	waitForStatus(t, f.store, lineID, models.StatusWaitingConfirmation)
	require.NoError(t, f.terminal.Cancel(context.Background(), lineID))

	resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.KindSuccess, resp.Kind)
	assert.Equal(t, models.StatusDone, f.store.status(t, lineID))
	assert.Equal(t, 2, f.backend.callCount(proxy.OpSale))

	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, models.KindCancelled, r.resp.Kind)
}

func TestTerminal_LineLockCoversSendPhaseOnly(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`).reply(proxy.OpSale, `{"success":true}`)

	first := initiateAsync(context.Background(), f.terminal, lineID)
	waitForStatus(t, f.store, lineID, models.StatusWaitingConfirmation)
	assert.Eventually(t, func() bool { return !f.locker.isHeld(lineID) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.terminal.Cancel(context.Background(), lineID))

	resp, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.KindSuccess, resp.Kind)
	assert.Equal(t, 2, f.backend.callCount(proxy.OpSale))
	assert.False(t, f.locker.isHeld(lineID))

	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, models.KindCancelled, r.resp.Kind)
}

func TestTerminal_LockedLineRejected(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)

	release, err := f.locker.Acquire(context.Background(), lineID)
	require.NoError(t, err)
	defer release()

	_, err = f.terminal.Initiate(context.Background(), testOrder(), lineID)
	assert.ErrorIs(t, err, models.ErrLineLocked)
	assert.Equal(t, 0, f.backend.totalCalls())
	assert.Equal(t, models.StatusInit, f.store.status(t, lineID))
}

func TestTerminal_LineLockReleasedAfterFailure(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.fail(proxy.OpSale, errUnreachable)

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	require.Error(t, err)
	assert.False(t, f.locker.isHeld(lineID))
}

func TestTerminal_NotificationForAnotherPaymentIgnored(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.backend.reply(proxy.OpSale, `{"status":"PENDING"}`)
	f.backend.
		reply(proxy.OpLatestStatus, `{"payment":{"id":"old","result":"SUCCESS","externalPaymentId":"order-0--session-1"}}`).
		reply(proxy.OpLatestStatus, `{"payment":{"id":"p1","result":"SUCCESS","externalPaymentId":"order-1--session-7"}}`)

	result := initiateAsync(context.Background(), f.terminal, lineID)
	waitForStatus(t, f.store, lineID, models.StatusWaitingConfirmation)

	require.NoError(t, f.terminal.HandleNotification(context.Background()))
	assert.Equal(t, models.StatusWaitingConfirmation, f.store.status(t, lineID))
	_, pending := f.terminal.PendingLine()
	assert.True(t, pending)

	require.NoError(t, f.terminal.HandleNotification(context.Background()))

	r := <-result
	require.NoError(t, r.err)
	assert.Equal(t, models.KindSuccess, r.resp.Kind)

	line, err := f.store.GetLine(context.Background(), lineID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, line.Status)
	require.NotNil(t, line.Settlement)
	assert.Equal(t, "p1", line.Settlement.TransactionID)
}

func TestTerminal_NotificationWithoutPendingLine(t *testing.T) {
	f := newTerminalFixture(t)

	require.NoError(t, f.terminal.HandleNotification(context.Background()))
	assert.Equal(t, 0, f.backend.totalCalls())
}

func TestTerminal_CloseRefusesNewPayments(t *testing.T) {
	f := newTerminalFixture(t)
	lineID := f.store.add("5.00", models.StatusInit)
	f.terminal.Close()

	_, err := f.terminal.Initiate(context.Background(), testOrder(), lineID)
	assert.ErrorIs(t, err, models.ErrSessionClosed)
	assert.Equal(t, models.StatusInit, f.store.status(t, lineID))
}
