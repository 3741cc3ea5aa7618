package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/models"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/services"
	apperrors "github.com/yashrajoria/seatserve/backend/services/common/errors"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// WebhookParser turns a signed provider webhook into a checkout event.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, sigHeader string) (*gateway.Callback, error)
}

// SandboxPayer simulates the hosted checkout in local development.
type SandboxPayer interface {
	Pay(ctx context.Context, gatewayOrderID string) (*gateway.Callback, error)
}

// CheckoutController handles the patron-facing checkout endpoints.
type CheckoutController struct {
	checkoutService services.CheckoutService
	webhooks        WebhookParser
	sandbox         SandboxPayer
	logger          *zap.Logger
}

// NewCheckoutController creates a CheckoutController. webhooks may be nil
// when the configured gateway has no server-side notifications.
func NewCheckoutController(checkoutService services.CheckoutService, webhooks WebhookParser, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{checkoutService: checkoutService, webhooks: webhooks, logger: logger}
}

// WithSandbox enables the simulated payment endpoint.
func (cc *CheckoutController) WithSandbox(p SandboxPayer) *CheckoutController {
	cc.sandbox = p
	return cc
}

// SandboxEnabled reports whether SandboxPay should be routed.
func (cc *CheckoutController) SandboxEnabled() bool {
	return cc.sandbox != nil
}

// Quote handles POST /checkout/quote.
func (cc *CheckoutController) Quote(ctx *gin.Context) {
	var sess models.Session
	if err := ctx.ShouldBindJSON(&sess); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	breakdown, err := cc.checkoutService.Quote(sess)
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"breakdown": breakdown, "amount": breakdown.AmountMinor()})
}

// Initiate handles POST /checkout/initiate.
func (cc *CheckoutController) Initiate(ctx *gin.Context) {
	var sess models.Session
	if err := ctx.ShouldBindJSON(&sess); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	opts, err := cc.checkoutService.Initiate(ctx.Request.Context(), sess)
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusCreated, opts)
}

// Callback handles POST /checkout/callback from the hosted checkout.
func (cc *CheckoutController) Callback(ctx *gin.Context) {
	var req models.CallbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	out, err := cc.checkoutService.HandleEvent(ctx.Request.Context(), gateway.Callback{
		Kind:           gateway.CallbackCompleted,
		GatewayOrderID: req.GatewayOrderID,
		PaymentID:      req.PaymentID,
		Signature:      req.Signature,
	})
	cc.writeOutcome(ctx, out, err)
}

// Dismiss handles POST /checkout/dismiss.
func (cc *CheckoutController) Dismiss(ctx *gin.Context) {
	var req models.DismissRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	out, err := cc.checkoutService.HandleEvent(ctx.Request.Context(), gateway.Callback{
		Kind:           gateway.CallbackDismissed,
		GatewayOrderID: req.GatewayOrderID,
	})
	cc.writeOutcome(ctx, out, err)
}

// GetTransaction handles GET /checkout/transactions/:id.
func (cc *CheckoutController) GetTransaction(ctx *gin.Context) {
	status, err := cc.checkoutService.Status(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusOK, status)
}

// StripeWebhook handles POST /webhooks/stripe. Stripe retries anything
// other than a 2xx, so only transient failures are reported as errors.
func (cc *CheckoutController) StripeWebhook(ctx *gin.Context) {
	if cc.webhooks == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Webhooks are not enabled"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	evt, err := cc.webhooks.ParseWebhook(ctx.Request.Context(), payload, ctx.GetHeader("Stripe-Signature"))
	if err != nil {
		cc.logger.Warn("Rejected Stripe webhook", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook"})
		return
	}
	if evt.Kind == gateway.CallbackIgnored {
		ctx.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	out, err := cc.checkoutService.HandleEvent(ctx.Request.Context(), *evt)
	httpErr := toHTTPError(err)
	if err != nil && httpErr.Code >= http.StatusInternalServerError {
		apperrors.Respond(ctx, httpErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"received": true, "outcome": out})
}

// SandboxPay handles POST /sandbox/pay/:gatewayOrderId. It returns the
// payload the hosted checkout would hand to the browser; the client posts
// it to /checkout/callback like a real payment.
func (cc *CheckoutController) SandboxPay(ctx *gin.Context) {
	cb, err := cc.sandbox.Pay(ctx.Request.Context(), ctx.Param("gatewayOrderId"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, models.CallbackRequest{
		GatewayOrderID: cb.GatewayOrderID,
		PaymentID:      cb.PaymentID,
		Signature:      cb.Signature,
	})
}

// writeOutcome renders the result of an event. Terminal outcomes carry
// the attempt state alongside the message so the client can decide
// whether to clear the cart.
func (cc *CheckoutController) writeOutcome(ctx *gin.Context, out *models.Outcome, err error) {
	if err == nil {
		ctx.JSON(http.StatusOK, out)
		return
	}
	httpErr := toHTTPError(err)
	if out == nil || httpErr.Code >= http.StatusInternalServerError {
		apperrors.Respond(ctx, httpErr)
		return
	}
	ctx.JSON(httpErr.Code, gin.H{"error": httpErr.Message, "outcome": out})
}

// toHTTPError maps checkout errors to responses.
func toHTTPError(err error) *apperrors.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, services.ErrEmptyCart):
		return apperrors.BadRequest("Cart is empty", err)
	case errors.Is(err, pricing.ErrInvalidLine):
		return apperrors.BadRequest("Cart contains an invalid item", err)
	case errors.Is(err, services.ErrInvalidSession):
		return apperrors.BadRequest(services.ErrInvalidSession.Error(), err)
	case errors.Is(err, services.ErrInvalidEvent):
		return apperrors.BadRequest(services.ErrInvalidEvent.Error(), err)
	case errors.Is(err, gateway.ErrInvalidAmount):
		return apperrors.BadRequest("Order total must be greater than zero", err)
	case errors.Is(err, services.ErrInvalidSignature):
		return apperrors.New(http.StatusPaymentRequired, "Payment verification failed", err)
	case errors.Is(err, services.ErrUserCancelled):
		return apperrors.New(http.StatusOK, "Payment cancelled", err)
	case errors.Is(err, services.ErrReconciliation):
		return apperrors.New(http.StatusAccepted, services.ErrReconciliation.Error(), err)
	case errors.Is(err, services.ErrGatewayUnavailable):
		return apperrors.Unavailable("Failed to initiate payment, please retry", err)
	case errors.Is(err, services.ErrVerificationUnavailable):
		return apperrors.Unavailable("Failed to verify payment, please retry", err)
	case errors.Is(err, services.ErrBusy):
		return apperrors.Conflict(services.ErrBusy.Error(), err)
	case errors.Is(err, services.ErrTransactionNotFound):
		return apperrors.NotFound("Transaction not found")
	case errors.Is(err, gateway.ErrGatewayRejected), errors.Is(err, services.ErrAmountMismatch):
		return apperrors.New(http.StatusBadGateway, "Payment gateway rejected the order", err)
	default:
		return apperrors.Internal(err)
	}
}
