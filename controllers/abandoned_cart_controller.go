package controllers

import (
	"net/http"

	"settlement-service/apperrors"
	"settlement-service/models"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AbandonedCartController struct {
	service services.AbandonedCartService
}

func NewAbandonedCartController(service services.AbandonedCartService) *AbandonedCartController {
	return &AbandonedCartController{service: service}
}

// Preview handles GET /abandoned-cart/discount?cartId=.
func (ac *AbandonedCartController) Preview(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	cartID, err := uuid.Parse(ctx.Query("cartId"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart id"})
		return
	}

	result, err := ac.service.Preview(ctx.Request.Context(), userID, cartID)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// Apply handles POST /abandoned-cart/discount/apply.
func (ac *AbandonedCartController) Apply(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req models.ApplyAbandonedDiscountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	result, err := ac.service.Apply(ctx.Request.Context(), userID, req.CartID)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
