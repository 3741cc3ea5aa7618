package routes

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/api-gateway/middlewares"
	"github.com/yashrajoria/seatserve/backend/api-gateway/utils"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
)

// Upstreams are the base URLs of the services behind the gateway.
type Upstreams struct {
	Checkout string
	Orders   string
	Sandbox  bool
}

func RegisterAllRoutes(r *gin.Engine, fw *utils.Forwarder, up Upstreams, verifier *auth.TokenVerifier) {
	checkoutBase := strings.TrimRight(up.Checkout, "/")
	ordersBase := strings.TrimRight(up.Orders, "/")

	// ===== PATRON ROUTES (PUBLIC) =====
	checkout := fw.To(checkoutBase + "/checkout")
	r.GET("/checkout/*any", checkout)
	r.POST("/checkout/*any", checkout)

	// Gateway webhooks authenticate by signature, not by token.
	r.POST("/webhooks/stripe", fw.To(checkoutBase+"/webhooks/stripe"))

	if up.Sandbox {
		r.POST("/sandbox/*any", fw.To(checkoutBase+"/sandbox"))
	}

	// ===== STAFF ROUTES (JWT + Admin Role Required) =====
	admin := r.Group("/admin")
	admin.Use(middlewares.JWTMiddleware(verifier), middleware.AdminOnly())
	orders := fw.To(ordersBase + "/admin")
	admin.GET("/*any", orders)
	admin.POST("/*any", orders)
}
