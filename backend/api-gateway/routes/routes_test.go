package routes_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/seatserve/backend/api-gateway/routes"
	"github.com/yashrajoria/seatserve/backend/api-gateway/utils"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type seen struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Query   string `json:"query"`
	Body    string `json:"body"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	Stripe  string `json:"stripe"`
	Forward string `json:"forward"`
}

// echoUpstream replies with what it received.
func echoUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(seen{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Body:    string(body),
			UserID:  r.Header.Get("X-User-ID"),
			Role:    r.Header.Get("X-User-Role"),
			Stripe:  r.Header.Get("Stripe-Signature"),
			Forward: r.Header.Get("X-Forwarded-For"),
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupRouter(checkoutURL, ordersURL string, sandbox bool) (*gin.Engine, *auth.TokenVerifier) {
	verifier := auth.NewTokenVerifier("s3cret")
	r := gin.New()
	routes.RegisterAllRoutes(r, utils.NewForwarder(2*time.Second, nil), routes.Upstreams{
		Checkout: checkoutURL,
		Orders:   ordersURL,
		Sandbox:  sandbox,
	}, verifier)
	return r, verifier
}

func decode(t *testing.T, w *httptest.ResponseRecorder) seen {
	t.Helper()
	var s seen
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

func TestCheckoutRoutesArePublic(t *testing.T) {
	checkout := echoUpstream(t)
	r, _ := setupRouter(checkout.URL, "http://127.0.0.1:1", false)

	req := httptest.NewRequest(http.MethodPost, "/checkout/quote?src=seat", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "spoofed")
	req.Header.Set("X-User-Role", "admin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	s := decode(t, w)
	assert.Equal(t, http.MethodPost, s.Method)
	assert.Equal(t, "/checkout/quote", s.Path)
	assert.Equal(t, "src=seat", s.Query)
	assert.Equal(t, `{"items":[]}`, s.Body)
	assert.Empty(t, s.UserID, "client identity headers must not reach upstream")
	assert.Empty(t, s.Role)
	assert.NotEmpty(t, s.Forward)
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStripeWebhookKeepsSignature(t *testing.T) {
	checkout := echoUpstream(t)
	r, _ := setupRouter(checkout.URL, "http://127.0.0.1:1", false)

	payload := `{"type":"checkout.session.completed"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	s := decode(t, w)
	assert.Equal(t, "/webhooks/stripe", s.Path)
	assert.Equal(t, payload, s.Body)
	assert.Equal(t, "t=1,v1=abc", s.Stripe)
}

func TestSandboxRoutesOnlyWhenEnabled(t *testing.T) {
	checkout := echoUpstream(t)

	r, _ := setupRouter(checkout.URL, "http://127.0.0.1:1", false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sandbox/pay/order_1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	r, _ = setupRouter(checkout.URL, "http://127.0.0.1:1", true)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sandbox/pay/order_1", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/sandbox/pay/order_1", decode(t, w).Path)
}

func TestAdminRoutesRequireStaffToken(t *testing.T) {
	orders := echoUpstream(t)
	r, verifier := setupRouter("http://127.0.0.1:1", orders.URL, false)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/orders", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("spoofed headers without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		req.Header.Set("X-User-ID", "staff-1")
		req.Header.Set("X-User-Role", "admin")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non admin", func(t *testing.T) {
		token, err := verifier.Issue("usher-1", "staff", "", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin is forwarded with identity", func(t *testing.T) {
		token, err := verifier.Issue("staff-1", auth.RoleAdmin, "kitchen@venue.test", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord-1/complete", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-User-ID", "someone-else")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)
		s := decode(t, w)
		assert.Equal(t, "/admin/orders/ord-1/complete", s.Path)
		assert.Equal(t, "staff-1", s.UserID)
		assert.Equal(t, auth.RoleAdmin, s.Role)
	})
}

func TestUnreachableUpstream(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	r, _ := setupRouter(downURL, downURL, false)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/checkout/initiate", strings.NewReader("{}")))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "service unreachable")
}

func TestSlowUpstreamTimesOut(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)

	r := gin.New()
	routes.RegisterAllRoutes(r, utils.NewForwarder(50*time.Millisecond, nil), routes.Upstreams{
		Checkout: slow.URL,
		Orders:   slow.URL,
	}, auth.NewTokenVerifier("s3cret"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout/transactions/tx-1", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
