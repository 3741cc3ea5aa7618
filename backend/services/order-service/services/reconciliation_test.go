package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"go.uber.org/zap"
)

// seedException records a transaction whose verified payment has no order.
func (e *testEnv) seedException(t *testing.T, kind store.ExceptionKind, signature func(gid, pid string) string) (*store.Transaction, *store.ReconciliationException) {
	t.Helper()
	ctx := context.Background()
	gid := "order_" + uuid.NewString()[:8]
	pid := "pay_" + uuid.NewString()[:8]
	tx := paidTransaction(gid)
	if kind == store.ExceptionLatePayment {
		tx.Status, tx.FailureReason = store.TransactionFailed, store.ReasonTimeout
	}
	require.NoError(t, e.repos.Transactions.Create(ctx, tx))

	exc := &store.ReconciliationException{
		ID:               uuid.NewString(),
		TransactionID:    tx.ID,
		GatewayOrderID:   gid,
		PaymentID:        pid,
		PaymentSignature: signature(gid, pid),
		AmountMinor:      tx.AmountMinor,
		Kind:             kind,
		Detail:           "order insert failed",
		Status:           store.ExceptionOpen,
	}
	require.NoError(t, e.repos.Reconciliation.Create(ctx, exc))
	return tx, exc
}

func genuine(gid, pid string) string { return gateway.Sign(testSecret, gid, pid) }

func forged(string, string) string { return "deadbeef" }

func TestResolveException_CreatesMissingOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	tx, exc := env.seedException(t, store.ExceptionOrderWriteFailed, genuine)

	res, err := env.svc.ResolveException(context.Background(), exc.ID)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, tx.GatewayOrderID, res.Order.GatewayOrderID)
	assert.Equal(t, exc.PaymentID, res.Order.PaymentID)
	assert.Equal(t, int64(10480), res.Order.Amounts.TotalMinor)
	assert.Equal(t, store.OrderPending, res.Order.Status)
	assert.Equal(t, store.ExceptionResolved, res.Exception.Status)

	stored, err := env.repos.Reconciliation.FindByID(context.Background(), exc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExceptionResolved, stored.Status)
	assert.Equal(t, res.Order.ID, stored.OrderID)

	order, err := env.repos.Orders.FindByGatewayOrderID(context.Background(), tx.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, order.ID)

	assert.Equal(t, []string{events.TypeOrderCreated, events.TypeReconciliationResolved}, env.publisher.types())

	_, err = env.svc.ResolveException(context.Background(), exc.ID)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestResolveException_LinksExistingOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	tx, exc := env.seedException(t, store.ExceptionOrderWriteFailed, genuine)
	existing := store.NewOrder(tx, exc.PaymentID, exc.PaymentSignature)
	require.NoError(t, env.repos.Orders.Create(context.Background(), existing))

	res, err := env.svc.ResolveException(context.Background(), exc.ID)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, existing.ID, res.Order.ID)
	assert.Equal(t, []string{events.TypeReconciliationResolved}, env.publisher.types())
}

func TestResolveException_LatePaymentOpensOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	tx, exc := env.seedException(t, store.ExceptionLatePayment, genuine)

	res, err := env.svc.ResolveException(context.Background(), exc.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)

	ledger, err := env.repos.Transactions.FindByID(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TransactionFailed, ledger.Status)
}

func TestResolveException_RefusesForgedProof(t *testing.T) {
	env := newTestEnv(t, nil)
	tx, exc := env.seedException(t, store.ExceptionLatePayment, forged)

	_, err := env.svc.ResolveException(context.Background(), exc.ID)
	assert.ErrorIs(t, err, ErrPaymentNotVerified)

	stored, err := env.repos.Reconciliation.FindByID(context.Background(), exc.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ExceptionOpen, stored.Status)
	_, err = env.repos.Orders.FindByGatewayOrderID(context.Background(), tx.GatewayOrderID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveException_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.ResolveException(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrExceptionNotFound)
}

func TestListExceptions_OpenFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	_, resolved := env.seedException(t, store.ExceptionOrderWriteFailed, genuine)
	_, err := env.svc.ResolveException(context.Background(), resolved.ID)
	require.NoError(t, err)
	_, open := env.seedException(t, store.ExceptionLatePayment, forged)

	list, err := env.svc.ListExceptions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, open.ID, list[0].ID)
	assert.Equal(t, resolved.ID, list[1].ID)
}

func TestAlertHandler(t *testing.T) {
	alertFor := func(exc *store.ReconciliationException) string {
		body, err := events.ReconciliationAlert{
			ExceptionID:    exc.ID,
			Kind:           string(exc.Kind),
			TransactionID:  exc.TransactionID,
			GatewayOrderID: exc.GatewayOrderID,
			PaymentID:      exc.PaymentID,
			AmountMinor:    exc.AmountMinor,
		}.Encode()
		require.NoError(t, err)
		return body
	}

	t.Run("resolves and acknowledges", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, exc := env.seedException(t, store.ExceptionOrderWriteFailed, genuine)
		handler := NewAlertHandler(env.svc, nil, zap.NewNop())

		require.NoError(t, handler(context.Background(), alertFor(exc)))
		stored, err := env.repos.Reconciliation.FindByID(context.Background(), exc.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ExceptionResolved, stored.Status)

		// Redelivery after success is a no-op.
		assert.NoError(t, handler(context.Background(), alertFor(exc)))
	})

	t.Run("accepts SNS envelopes", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, exc := env.seedException(t, store.ExceptionOrderWriteFailed, genuine)
		handler := NewAlertHandler(env.svc, nil, zap.NewNop())

		envelope, err := json.Marshal(map[string]string{"Type": "Notification", "Message": alertFor(exc)})
		require.NoError(t, err)
		require.NoError(t, handler(context.Background(), string(envelope)))
		stored, err := env.repos.Reconciliation.FindByID(context.Background(), exc.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ExceptionResolved, stored.Status)
	})

	t.Run("late payment waits for an operator", func(t *testing.T) {
		env := newTestEnv(t, nil)
		tx, exc := env.seedException(t, store.ExceptionLatePayment, genuine)
		handler := NewAlertHandler(env.svc, nil, zap.NewNop())

		assert.NoError(t, handler(context.Background(), alertFor(exc)))
		stored, err := env.repos.Reconciliation.FindByID(context.Background(), exc.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ExceptionOpen, stored.Status)
		_, err = env.repos.Orders.FindByGatewayOrderID(context.Background(), tx.GatewayOrderID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Empty(t, env.publisher.types())
	})

	t.Run("forged proof stays open without redelivery", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, exc := env.seedException(t, store.ExceptionOrderWriteFailed, forged)
		handler := NewAlertHandler(env.svc, nil, zap.NewNop())

		assert.NoError(t, handler(context.Background(), alertFor(exc)))
		stored, err := env.repos.Reconciliation.FindByID(context.Background(), exc.ID)
		require.NoError(t, err)
		assert.Equal(t, store.ExceptionOpen, stored.Status)
	})

	t.Run("verification outage is redelivered", func(t *testing.T) {
		env := newTestEnv(t, func(o *Options) { o.Guard = &fakeGuard{err: errors.New("secret unavailable")} })
		_, exc := env.seedException(t, store.ExceptionOrderWriteFailed, genuine)
		handler := NewAlertHandler(env.svc, nil, zap.NewNop())

		assert.ErrorIs(t, handler(context.Background(), alertFor(exc)), ErrVerificationUnavailable)
	})

	t.Run("malformed body is dropped", func(t *testing.T) {
		env := newTestEnv(t, nil)
		handler := NewAlertHandler(env.svc, nil, zap.NewNop())
		assert.NoError(t, handler(context.Background(), "not json"))
		assert.NoError(t, handler(context.Background(), `{"kind":"late_payment"}`))
	})
}
