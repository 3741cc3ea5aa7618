package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/seatserve/backend/services/common/auth"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
	"github.com/yashrajoria/seatserve/backend/services/order-service/controllers"
)

// RegisterOrderRoutes sets up the staff console. Every route requires an
// admin identity.
func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController, verifier *auth.TokenVerifier) {
	adminRoutes := r.Group("/admin")
	adminRoutes.Use(middleware.AuthMiddleware(verifier), middleware.AdminOnly())

	adminRoutes.GET("/orders", oc.GetPendingOrders)
	adminRoutes.GET("/orders/history", oc.GetOrderHistory)
	adminRoutes.GET("/orders/export", oc.ExportOrders)
	adminRoutes.GET("/orders/:id", oc.GetOrderByID)
	adminRoutes.GET("/orders/:id/receipt", oc.GetReceipt)
	adminRoutes.POST("/orders/:id/complete", oc.CompleteOrder)
	adminRoutes.POST("/orders/:id/not-done", oc.MarkNotDone)

	adminRoutes.GET("/reconciliation", oc.GetExceptions)
	adminRoutes.POST("/reconciliation/:id/resolve", oc.ResolveException)
}
