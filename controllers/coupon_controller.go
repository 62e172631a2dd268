package controllers

import (
	"net/http"

	"settlement-service/apperrors"
	"settlement-service/models"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
)

// CouponController handles HTTP requests for coupon operations.
type CouponController struct {
	couponService services.CouponService
}

// NewCouponController creates a new CouponController.
func NewCouponController(couponService services.CouponService) *CouponController {
	return &CouponController{couponService: couponService}
}

// CreateCoupon handles POST /coupons (admin only).
func (cc *CouponController) CreateCoupon(ctx *gin.Context) {
	var req models.CreateCouponRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	coupon, err := cc.couponService.CreateCoupon(ctx.Request.Context(), &req)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"coupon": coupon})
}

// GetCoupon handles GET /coupons/:id (admin only).
func (cc *CouponController) GetCoupon(ctx *gin.Context) {
	id, ok := uuidParam(ctx, "id", "coupon")
	if !ok {
		return
	}

	coupon, err := cc.couponService.GetCoupon(ctx.Request.Context(), id)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"coupon": coupon})
}

// DeleteCoupon handles DELETE /coupons/:id (admin only).
func (cc *CouponController) DeleteCoupon(ctx *gin.Context) {
	id, ok := uuidParam(ctx, "id", "coupon")
	if !ok {
		return
	}

	if err := cc.couponService.DeleteCoupon(ctx.Request.Context(), id); err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Coupon deleted"})
}

// ListCoupons handles GET /coupons (admin only).
func (cc *CouponController) ListCoupons(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)

	coupons, total, err := cc.couponService.ListCoupons(ctx.Request.Context(), page, limit)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"coupons": coupons,
		"meta":    paginationMeta(page, limit, total),
	})
}

// ListAvailable handles GET /user/coupons.
func (cc *CouponController) ListAvailable(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	coupons, err := cc.couponService.ListAvailableCoupons(ctx.Request.Context(), userID)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

// RedeemCoupon handles POST /user/coupons/redeem.
func (cc *CouponController) RedeemCoupon(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req models.RedeemCouponRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	coupon, err := cc.couponService.RedeemCoupon(ctx.Request.Context(), userID, req.Code, req.CartID)
	if err != nil {
		apperrors.Respond(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Discount code applied", "coupon": coupon})
}
