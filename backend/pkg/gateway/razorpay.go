package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const razorpayBaseURL = "https://api.razorpay.com"

// Razorpay implements Client against the Razorpay Orders API. Payments are
// verified locally with the key secret.
type Razorpay struct {
	keyID      string
	secret     SecretSource
	currency   string
	baseURL    string
	httpClient *http.Client
}

// RazorpayOption customises a Razorpay client.
type RazorpayOption func(*Razorpay)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) RazorpayOption {
	return func(r *Razorpay) {
		if url != "" {
			r.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHTTPClient replaces the default 15s-timeout HTTP client.
func WithHTTPClient(c *http.Client) RazorpayOption {
	return func(r *Razorpay) { r.httpClient = c }
}

// NewRazorpay creates a Razorpay client.
func NewRazorpay(keyID string, secret SecretSource, currency string, opts ...RazorpayOption) *Razorpay {
	r := &Razorpay{
		keyID:    keyID,
		secret:   secret,
		currency: currency,
		baseURL:  razorpayBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ---- Razorpay API request/response structs ----

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) Name() string { return ProviderRazorpay }

// CreateOrder creates a Razorpay order for the given amount in paise.
func (r *Razorpay) CreateOrder(ctx context.Context, amountMinor int64, receipt string) (*Order, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	reqBody := razorpayOrderRequest{
		Amount:   amountMinor,
		Currency: r.currency,
		Receipt:  receipt,
	}

	var resp razorpayOrderResponse
	if err := r.doRequest(ctx, http.MethodPost, "/v1/orders", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: empty order id in response", ErrGatewayUnavailable)
	}

	return &Order{
		ID:          resp.ID,
		AmountMinor: resp.Amount,
		Currency:    resp.Currency,
		Receipt:     resp.Receipt,
		Status:      resp.Status,
		CreatedAt:   time.Unix(resp.CreatedAt, 0).UTC(),
	}, nil
}

// Verify checks the checkout signature. No network call is made.
func (r *Razorpay) Verify(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	secret, err := r.secret.Secret(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return VerifySignature(secret, gatewayOrderID, paymentID, signature), nil
}

func (r *Razorpay) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	secret, err := r.secret.Secret(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(r.keyID, secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var apiErr razorpayErrorResponse
		_ = json.Unmarshal(respBytes, &apiErr)
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, apiErr.Error.Description)
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
