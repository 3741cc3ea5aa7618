package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/seatserve/backend/services/common/errors"
	"github.com/yashrajoria/seatserve/backend/services/common/middleware"
	"github.com/yashrajoria/seatserve/backend/services/order-service/models"
	"github.com/yashrajoria/seatserve/backend/services/order-service/services"
	"go.uber.org/zap"
)

type OrderController struct {
	fulfillmentService services.FulfillmentService
	logger             *zap.Logger
}

func NewOrderController(fulfillmentService services.FulfillmentService, logger *zap.Logger) *OrderController {
	return &OrderController{fulfillmentService: fulfillmentService, logger: logger}
}

// GetPendingOrders returns the orders staff still have to fulfil.
func (oc *OrderController) GetPendingOrders(ctx *gin.Context) {
	orders, err := oc.fulfillmentService.ListPending(ctx.Request.Context())
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusOK, models.OrderList{Orders: orders, Count: len(orders)})
}

// GetOrderHistory handles GET /admin/orders/history?date=YYYY-MM-DD&status=completed,not_done.
func (oc *OrderController) GetOrderHistory(ctx *gin.Context) {
	day, err := oc.fulfillmentService.ParseDay(ctx.Query("date"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	statuses, err := services.ParseStatuses(ctx.Query("status"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}

	orders, err := oc.fulfillmentService.ListHistory(ctx.Request.Context(), day, statuses)
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusOK, models.OrderList{Orders: orders, Count: len(orders), Day: day.Format("2006-01-02")})
}

func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	order, err := oc.fulfillmentService.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// GetReceipt returns the print slip as plain text.
func (oc *OrderController) GetReceipt(ctx *gin.Context) {
	receipt, err := oc.fulfillmentService.Receipt(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.String(http.StatusOK, receipt)
}

func (oc *OrderController) CompleteOrder(ctx *gin.Context) {
	order, err := oc.fulfillmentService.MarkCompleted(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	oc.logger.Info("Order completed by staff",
		zap.String("order_id", order.ID),
		zap.String("staff_id", middleware.StaffID(ctx)),
	)
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (oc *OrderController) MarkNotDone(ctx *gin.Context) {
	var req models.NotDoneRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
	}

	order, err := oc.fulfillmentService.MarkNotDone(ctx.Request.Context(), ctx.Param("id"), req.Note)
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	oc.logger.Info("Order marked not done by staff",
		zap.String("order_id", order.ID),
		zap.String("staff_id", middleware.StaffID(ctx)),
	)
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// ExportOrders streams the day's workbook as an attachment.
func (oc *OrderController) ExportOrders(ctx *gin.Context) {
	day, err := oc.fulfillmentService.ParseDay(ctx.Query("date"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}

	export, err := oc.fulfillmentService.Export(ctx.Request.Context(), day)
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	if export.Location != "" {
		ctx.Header("X-Export-Location", export.Location)
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	ctx.Data(http.StatusOK, services.XLSXContentType, export.Content)
}

func (oc *OrderController) GetExceptions(ctx *gin.Context) {
	exceptions, err := oc.fulfillmentService.ListExceptions(ctx.Request.Context())
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"exceptions": exceptions, "count": len(exceptions)})
}

func (oc *OrderController) ResolveException(ctx *gin.Context) {
	res, err := oc.fulfillmentService.ResolveException(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		apperrors.Respond(ctx, toHTTPError(err))
		return
	}
	oc.logger.Info("Reconciliation exception resolved by staff",
		zap.String("exception_id", res.Exception.ID),
		zap.String("order_id", res.Order.ID),
		zap.String("staff_id", middleware.StaffID(ctx)),
	)
	ctx.JSON(http.StatusOK, res)
}

func toHTTPError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		return apperrors.NotFound("Order not found")
	case errors.Is(err, services.ErrExceptionNotFound):
		return apperrors.NotFound("Reconciliation exception not found")
	case errors.Is(err, services.ErrInvalidDay), errors.Is(err, services.ErrInvalidStatusFilter):
		return apperrors.BadRequest(err.Error(), err)
	case errors.Is(err, services.ErrInvalidTransition):
		return apperrors.Conflict(err.Error(), err)
	case errors.Is(err, services.ErrAlreadyResolved):
		return apperrors.Conflict(services.ErrAlreadyResolved.Error(), err)
	case errors.Is(err, services.ErrPaymentNotVerified):
		return apperrors.New(http.StatusUnprocessableEntity, services.ErrPaymentNotVerified.Error(), err)
	case errors.Is(err, services.ErrVerificationUnavailable):
		return apperrors.Unavailable("Failed to verify payment, please retry", err)
	default:
		return apperrors.Internal(err)
	}
}
