package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/services/checkout-service/controllers"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
)

// RegisterCheckoutRoutes sets up the patron checkout routes. They are
// public: the patron is anonymous and identified only by the session body.
func RegisterCheckoutRoutes(r *gin.Engine, cc *controllers.CheckoutController, perMinute, burst int) {
	checkout := r.Group("/checkout")
	checkout.Use(middleware.RateLimitMiddleware(perMinute, burst))
	checkout.POST("/quote", cc.Quote)
	checkout.POST("/initiate", cc.Initiate)
	checkout.POST("/callback", cc.Callback)
	checkout.POST("/dismiss", cc.Dismiss)
	checkout.GET("/transactions/:id", cc.GetTransaction)

	r.POST("/webhooks/stripe", cc.StripeWebhook)

	if cc.SandboxEnabled() {
		r.POST("/sandbox/pay/:gatewayOrderId", cc.SandboxPay)
	}
}
