package gateway_test

import (
	"context"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
)

const testSecret = "rzp_test_secret"

func TestSign_KnownVector(t *testing.T) {
	sig := gateway.Sign(testSecret, "order_ABC", "pay_XYZ")
	assert.Len(t, sig, 64)
	assert.True(t, gateway.VerifySignature(testSecret, "order_ABC", "pay_XYZ", sig))
	assert.False(t, gateway.VerifySignature("other", "order_ABC", "pay_XYZ", sig))
	assert.False(t, gateway.VerifySignature(testSecret, "order_ABC", "pay_OTHER", sig))
}

func TestVerifySignature_RandomSignaturesRejected(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	good := gateway.Sign(testSecret, "order_1", "pay_1")

	for i := 0; i < 500; i++ {
		buf := make([]byte, 32)
		rng.Read(buf)
		candidate := hex.EncodeToString(buf)
		if candidate == good {
			continue
		}
		assert.False(t, gateway.VerifySignature(testSecret, "order_1", "pay_1", candidate))
	}
	assert.False(t, gateway.VerifySignature(testSecret, "order_1", "pay_1", ""))
}

func TestSandbox_CreateOrderIdempotentPerReceipt(t *testing.T) {
	sb := gateway.NewSandbox(gateway.StaticSecret(testSecret), "INR")
	ctx := context.Background()

	first, err := sb.CreateOrder(ctx, 10480, "rcpt_1")
	require.NoError(t, err)
	again, err := sb.CreateOrder(ctx, 10480, "rcpt_1")
	require.NoError(t, err)
	other, err := sb.CreateOrder(ctx, 10480, "rcpt_2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, int64(10480), first.AmountMinor)

	_, err = sb.CreateOrder(ctx, 0, "rcpt_3")
	assert.ErrorIs(t, err, gateway.ErrInvalidAmount)
}

func TestSandbox_PayProducesVerifiableCallback(t *testing.T) {
	sb := gateway.NewSandbox(gateway.StaticSecret(testSecret), "INR")
	ctx := context.Background()

	order, err := sb.CreateOrder(ctx, 500, "rcpt_pay")
	require.NoError(t, err)

	cb, err := sb.Pay(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, gateway.CallbackCompleted, cb.Kind)

	ok, err := sb.Verify(ctx, cb.GatewayOrderID, cb.PaymentID, cb.Signature)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sb.Verify(ctx, cb.GatewayOrderID, cb.PaymentID, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSandbox_MissingSecretIsVerificationError(t *testing.T) {
	sb := gateway.NewSandbox(gateway.StaticSecret(""), "INR")

	_, err := sb.Verify(context.Background(), "order_1", "pay_1", "sig")
	assert.ErrorIs(t, err, gateway.ErrVerification)
}

type fakeSecrets struct {
	value string
	err   error
}

func (f fakeSecrets) GetSecret(_ context.Context, _ string) (string, error) { return f.value, f.err }

func TestManagedSecret(t *testing.T) {
	ctx := context.Background()

	s, err := gateway.ManagedSecret{Getter: fakeSecrets{value: `{"key_secret":"abc"}`}, Name: "checkout/GATEWAY", Field: "key_secret"}.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	s, err = gateway.ManagedSecret{Getter: fakeSecrets{value: "raw-secret"}, Name: "checkout/GATEWAY", Field: "key_secret"}.Secret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "raw-secret", s)

	_, err = gateway.ManagedSecret{Getter: fakeSecrets{value: `{"other":"x"}`}, Name: "n", Field: "key_secret"}.Secret(ctx)
	assert.Error(t, err)

	_, err = gateway.ManagedSecret{Getter: fakeSecrets{err: assert.AnError}, Name: "n"}.Secret(ctx)
	assert.ErrorIs(t, err, assert.AnError)
}

// cachingSecrets serves values in order and records invalidations.
type cachingSecrets struct {
	values      []string
	reads       int
	invalidated []string
}

func (c *cachingSecrets) GetSecret(_ context.Context, _ string) (string, error) {
	v := c.values[min(c.reads, len(c.values)-1)]
	c.reads++
	return v, nil
}

func (c *cachingSecrets) Invalidate(name string) { c.invalidated = append(c.invalidated, name) }

func TestManagedSecret_RereadsUnusableCachedValue(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed upstream", func(t *testing.T) {
		cache := &cachingSecrets{values: []string{`{"other":"x"}`, `{"key_secret":"rotated"}`}}
		s, err := gateway.ManagedSecret{Getter: cache, Name: "checkout/GATEWAY", Field: "key_secret"}.Secret(ctx)
		require.NoError(t, err)
		assert.Equal(t, "rotated", s)
		assert.Equal(t, []string{"checkout/GATEWAY"}, cache.invalidated)
		assert.Equal(t, 2, cache.reads)
	})

	t.Run("still broken", func(t *testing.T) {
		cache := &cachingSecrets{values: []string{""}}
		_, err := gateway.ManagedSecret{Getter: cache, Name: "checkout/GATEWAY"}.Secret(ctx)
		assert.Error(t, err)
		assert.Len(t, cache.invalidated, 1)
		assert.Equal(t, 2, cache.reads)
	})

	t.Run("usable value is not reread", func(t *testing.T) {
		cache := &cachingSecrets{values: []string{"raw-secret"}}
		s, err := gateway.ManagedSecret{Getter: cache, Name: "checkout/GATEWAY"}.Secret(ctx)
		require.NoError(t, err)
		assert.Equal(t, "raw-secret", s)
		assert.Empty(t, cache.invalidated)
		assert.Equal(t, 1, cache.reads)
	})
}
