package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/seatserve/backend/pkg/events"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
	"go.uber.org/zap"
)

func TestSweepOnce_ExpiresOnlyStalePending(t *testing.T) {
	ctx := context.Background()
	repos := store.NewMemoryRepositories()
	now := time.Now()

	seed := []store.Transaction{
		{ID: "stale", GatewayOrderID: "o1", Status: store.TransactionPending, CreatedAt: now.Add(-45 * time.Minute)},
		{ID: "fresh", GatewayOrderID: "o2", Status: store.TransactionPending, CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "done", GatewayOrderID: "o3", Status: store.TransactionSuccess, CreatedAt: now.Add(-2 * time.Hour)},
	}
	for i := range seed {
		require.NoError(t, repos.Transactions.Create(ctx, &seed[i]))
	}

	pub := &recordingPublisher{}
	sweeper := NewSweeper(repos.Transactions, pub, nil, 30*time.Minute, time.Minute, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, _ := repos.Transactions.FindByID(ctx, "stale")
	assert.Equal(t, store.TransactionFailed, stale.Status)
	assert.Equal(t, store.ReasonTimeout, stale.FailureReason)
	assert.False(t, stale.Verification.Verified)

	fresh, _ := repos.Transactions.FindByID(ctx, "fresh")
	assert.Equal(t, store.TransactionPending, fresh.Status)
	assert.Equal(t, 1, pub.count(events.TypeTransactionExpired))

	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// racingTransactions settles a transaction between the stale query and the
// sweeper's compare-and-set.
type racingTransactions struct {
	store.TransactionRepository
}

func (r racingTransactions) Finalize(ctx context.Context, id string, status store.TransactionStatus, reason store.FailureReason, v store.Verification) error {
	_ = r.TransactionRepository.Finalize(ctx, id, store.TransactionSuccess, store.ReasonNone, store.Verification{Verified: true})
	return r.TransactionRepository.Finalize(ctx, id, status, reason, v)
}

func TestSweepOnce_SkipsTransactionsSettledConcurrently(t *testing.T) {
	ctx := context.Background()
	repos := store.NewMemoryRepositories()
	require.NoError(t, repos.Transactions.Create(ctx, &store.Transaction{
		ID: "tx", GatewayOrderID: "o1", Status: store.TransactionPending, CreatedAt: time.Now().Add(-time.Hour),
	}))

	sweeper := NewSweeper(racingTransactions{repos.Transactions}, nil, nil, 30*time.Minute, time.Minute, zap.NewNop())
	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	tx, _ := repos.Transactions.FindByID(ctx, "tx")
	assert.Equal(t, store.TransactionSuccess, tx.Status)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	repos := store.NewMemoryRepositories()
	sweeper := NewSweeper(repos.Transactions, nil, nil, time.Minute, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// --- Relay ---

func TestRelayHandler_RedeliversOnlyTransientFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	opts, err := env.svc.Initiate(ctx, session(samosa()))
	require.NoError(t, err)

	handler := NewRelayHandler(env.svc, zap.NewNop())

	assert.NoError(t, handler(ctx, "{not json"))
	assert.NoError(t, handler(ctx, `{"kind":"payment_completed","gateway_order_id":"order_unknown","payment_id":"p","signature":"s"}`))

	env.gw.VerifyFn = func(context.Context, string, string, string) (bool, error) {
		return false, errors.New("secrets manager timeout")
	}
	body := `{"kind":"payment_completed","gateway_order_id":"` + opts.GatewayOrderID +
		`","payment_id":"pay_relay","signature":"` + gateway.Sign(testSecret, opts.GatewayOrderID, "pay_relay") + `"}`
	assert.Error(t, handler(ctx, body))

	env.gw.VerifyFn = nil
	assert.NoError(t, handler(ctx, body))

	order, err := env.repos.Orders.FindByGatewayOrderID(ctx, opts.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, "pay_relay", order.PaymentID)

	// A replay of the settled callback is acknowledged.
	assert.NoError(t, handler(ctx, body))
}
