package controllers

import (
	"net/http"

	"settlement-service/apperrors"
	"settlement-service/models"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
)

type OrderController struct {
	orderService services.OrderService
}

func NewOrderController(orderService services.OrderService) *OrderController {
	return &OrderController{orderService: orderService}
}

// CreateOrder handles POST /orders.
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	order, err := oc.orderService.CreateOrder(ctx.Request.Context(), userID, &req)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"message": "Order created successfully", "order": order})
}

// GetOrder handles GET /orders/:id.
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	orderID, ok := uuidParam(ctx, "id", "order")
	if !ok {
		return
	}

	order, err := oc.orderService.GetOrder(ctx.Request.Context(), userID, orderID)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// ListMyOrders handles GET /orders.
func (oc *OrderController) ListMyOrders(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)

	orders, total, err := oc.orderService.ListUserOrders(ctx.Request.Context(), userID, page, limit)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": orders, "meta": paginationMeta(page, limit, total)})
}

// ListOrders handles GET /admin/orders?status=&search=.
func (oc *OrderController) ListOrders(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	filter := models.OrderFilter{Search: ctx.Query("search"), Page: page, Limit: limit}
	if raw := ctx.Query("status"); raw != "" {
		status, ok := models.ParseOrderStatus(raw)
		if !ok {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order status"})
			return
		}
		filter.Status = status
	}

	orders, total, err := oc.orderService.ListOrders(ctx.Request.Context(), filter)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": orders, "meta": paginationMeta(page, limit, total)})
}

// UpdateStatus handles PATCH /admin/orders/:id/status.
func (oc *OrderController) UpdateStatus(ctx *gin.Context) {
	orderID, ok := uuidParam(ctx, "id", "order")
	if !ok {
		return
	}
	var req models.UpdateOrderStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	order, err := oc.orderService.UpdateOrderStatus(ctx.Request.Context(), orderID, req.Status)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order": order})
}

// ConfirmPayment handles POST /admin/payments/confirm for manual reconciliation.
func (oc *OrderController) ConfirmPayment(ctx *gin.Context) {
	var req models.ConfirmPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	order, err := oc.orderService.ConfirmPayment(ctx.Request.Context(), req.GatewayOrderID, req.TransactionID)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Payment confirmed", "order": order})
}
