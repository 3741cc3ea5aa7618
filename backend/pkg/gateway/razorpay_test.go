package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
)

func TestRazorpay_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, testSecret, pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(10480), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "rcpt_1", body["receipt"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Rz1","entity":"order","amount":10480,"currency":"INR","receipt":"rcpt_1","status":"created","created_at":1700000000}`))
	}))
	defer srv.Close()

	client := gateway.NewRazorpay("rzp_test_key", gateway.StaticSecret(testSecret), "INR", gateway.WithBaseURL(srv.URL))

	order, err := client.CreateOrder(context.Background(), 10480, "rcpt_1")
	require.NoError(t, err)
	assert.Equal(t, "order_Rz1", order.ID)
	assert.Equal(t, int64(10480), order.AmountMinor)
	assert.Equal(t, "created", order.Status)
}

func TestRazorpay_CreateOrder_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := gateway.NewRazorpay("key", gateway.StaticSecret(testSecret), "INR", gateway.WithBaseURL(srv.URL))

	_, err := client.CreateOrder(context.Background(), 100, "rcpt")
	assert.ErrorIs(t, err, gateway.ErrGatewayUnavailable)
}

func TestRazorpay_CreateOrder_BadRequestIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	client := gateway.NewRazorpay("key", gateway.StaticSecret(testSecret), "INR", gateway.WithBaseURL(srv.URL))

	_, err := client.CreateOrder(context.Background(), 1, "rcpt")
	assert.ErrorIs(t, err, gateway.ErrGatewayRejected)
	assert.NotErrorIs(t, err, gateway.ErrGatewayUnavailable)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestRazorpay_CreateOrder_NetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := gateway.NewRazorpay("key", gateway.StaticSecret(testSecret), "INR", gateway.WithBaseURL(url))

	_, err := client.CreateOrder(context.Background(), 100, "rcpt")
	assert.ErrorIs(t, err, gateway.ErrGatewayUnavailable)
}

func TestRazorpay_CreateOrder_RejectsNonPositiveAmount(t *testing.T) {
	client := gateway.NewRazorpay("key", gateway.StaticSecret(testSecret), "INR")

	_, err := client.CreateOrder(context.Background(), 0, "rcpt")
	assert.ErrorIs(t, err, gateway.ErrInvalidAmount)
	_, err = client.CreateOrder(context.Background(), -5, "rcpt")
	assert.ErrorIs(t, err, gateway.ErrInvalidAmount)
}

func TestRazorpay_Verify(t *testing.T) {
	client := gateway.NewRazorpay("key", gateway.StaticSecret(testSecret), "INR")
	ctx := context.Background()

	ok, err := client.Verify(ctx, "order_1", "pay_1", gateway.Sign(testSecret, "order_1", "pay_1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Verify(ctx, "order_1", "pay_1", gateway.Sign(testSecret, "order_1", "pay_2"))
	require.NoError(t, err)
	assert.False(t, ok)

	broken := gateway.NewRazorpay("key", gateway.ManagedSecret{Getter: fakeSecrets{err: assert.AnError}, Name: "x"}, "INR")
	_, err = broken.Verify(ctx, "order_1", "pay_1", "sig")
	assert.ErrorIs(t, err, gateway.ErrVerification)
}
