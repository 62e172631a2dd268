package controllers

import (
	"net/http"

	"settlement-service/apperrors"
	"settlement-service/models"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
)

type OrderSummaryController struct {
	summaryService services.OrderSummaryService
}

func NewOrderSummaryController(summaryService services.OrderSummaryService) *OrderSummaryController {
	return &OrderSummaryController{summaryService: summaryService}
}

// GetSummary handles POST /order-summary.
func (sc *OrderSummaryController) GetSummary(ctx *gin.Context) {
	var req models.OrderSummaryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}
	if req.Subtotal.IsNegative() {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Subtotal cannot be negative"})
		return
	}

	summary, err := sc.summaryService.ComputeOrderSummary(ctx.Request.Context(), req.PostalCode, req.Subtotal)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// CheckPincode handles GET /pincodes/:code.
func (sc *OrderSummaryController) CheckPincode(ctx *gin.Context) {
	info, err := sc.summaryService.CheckPincode(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, info)
}
