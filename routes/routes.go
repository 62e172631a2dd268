package routes

import (
	"net/http"

	"settlement-service/controllers"
	"settlement-service/middleware"

	"github.com/gin-gonic/gin"
)

// Controllers groups the handlers mounted by RegisterRoutes.
type Controllers struct {
	Summary       *controllers.OrderSummaryController
	Coupons       *controllers.CouponController
	Orders        *controllers.OrderController
	Abandoned     *controllers.AbandonedCartController
	Notifications *controllers.NotificationController
}

// RegisterRoutes sets up the public, user and admin routes.
func RegisterRoutes(r *gin.Engine, c Controllers) {
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "OK", "service": "settlement-service"})
	})
	r.GET("/pincodes/:code", c.Summary.CheckPincode)

	// Authenticated routes
	user := r.Group("")
	user.Use(middleware.AuthMiddleware())
	user.POST("/order-summary", c.Summary.GetSummary)

	user.GET("/user/coupons", c.Coupons.ListAvailable)
	user.POST("/user/coupons/redeem", c.Coupons.RedeemCoupon)

	user.GET("/abandoned-cart/discount", c.Abandoned.Preview)
	user.POST("/abandoned-cart/discount/apply", c.Abandoned.Apply)

	user.POST("/orders", c.Orders.CreateOrder)
	user.GET("/orders", c.Orders.ListMyOrders)
	user.GET("/orders/:id", c.Orders.GetOrder)

	user.GET("/notifications", c.Notifications.List)

	// Admin-only routes
	coupons := user.Group("/coupons")
	coupons.Use(middleware.AdminOnly())
	coupons.POST("", c.Coupons.CreateCoupon)
	coupons.GET("", c.Coupons.ListCoupons)
	coupons.GET("/:id", c.Coupons.GetCoupon)
	coupons.DELETE("/:id", c.Coupons.DeleteCoupon)

	admin := user.Group("/admin")
	admin.Use(middleware.AdminOnly())
	admin.GET("/orders", c.Orders.ListOrders)
	admin.PATCH("/orders/:id/status", c.Orders.UpdateStatus)
	admin.POST("/payments/confirm", c.Orders.ConfirmPayment)
}
