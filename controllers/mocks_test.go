package controllers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"settlement-service/models"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Mock CouponService ---

type mockCouponService struct {
	createFn    func(ctx context.Context, req *models.CreateCouponRequest) (*models.CouponCode, error)
	redeemFn    func(ctx context.Context, userID uuid.UUID, code string, cartID uuid.UUID) (*models.CouponCode, error)
	getFn       func(ctx context.Context, id uuid.UUID) (*models.CouponCode, error)
	listFn      func(ctx context.Context, page, limit int) ([]models.CouponCode, int64, error)
	availableFn func(ctx context.Context, userID uuid.UUID) ([]models.CouponCode, error)
	deleteFn    func(ctx context.Context, id uuid.UUID) error
}

func (m *mockCouponService) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.CouponCode, error) {
	return m.createFn(ctx, req)
}
func (m *mockCouponService) IssueAbandonedCartCoupon(context.Context, *models.Cart, models.AbandonedCartSetting, time.Time) (*models.CouponCode, error) {
	panic("not used")
}
func (m *mockCouponService) RedeemCoupon(ctx context.Context, userID uuid.UUID, code string, cartID uuid.UUID) (*models.CouponCode, error) {
	return m.redeemFn(ctx, userID, code, cartID)
}
func (m *mockCouponService) ValidateForCart(context.Context, uuid.UUID, string, uuid.UUID) (*models.CouponCode, error) {
	panic("not used")
}
func (m *mockCouponService) SettleCoupon(context.Context, uuid.UUID, string, uuid.UUID) (*models.CouponCode, error) {
	panic("not used")
}
func (m *mockCouponService) PublishSettled(context.Context, *models.CouponCode, uuid.UUID, uuid.UUID) {
}
func (m *mockCouponService) SweepExpired(context.Context, time.Time) (int64, error) {
	panic("not used")
}
func (m *mockCouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*models.CouponCode, error) {
	return m.getFn(ctx, id)
}
func (m *mockCouponService) ListCoupons(ctx context.Context, page, limit int) ([]models.CouponCode, int64, error) {
	return m.listFn(ctx, page, limit)
}
func (m *mockCouponService) ListAvailableCoupons(ctx context.Context, userID uuid.UUID) ([]models.CouponCode, error) {
	return m.availableFn(ctx, userID)
}
func (m *mockCouponService) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	return m.deleteFn(ctx, id)
}

// --- Mock OrderService ---

type mockOrderService struct {
	createFn  func(ctx context.Context, userID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error)
	confirmFn func(ctx context.Context, ref, txn string) (*models.Order, error)
	statusFn  func(ctx context.Context, id uuid.UUID, status string) (*models.Order, error)
	getFn     func(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	mineFn    func(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	listFn    func(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, userID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error) {
	return m.createFn(ctx, userID, req)
}
func (m *mockOrderService) ConfirmPayment(ctx context.Context, ref, txn string) (*models.Order, error) {
	return m.confirmFn(ctx, ref, txn)
}
func (m *mockOrderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status string) (*models.Order, error) {
	return m.statusFn(ctx, id, status)
}
func (m *mockOrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return m.getFn(ctx, userID, orderID)
}
func (m *mockOrderService) ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	return m.mineFn(ctx, userID, page, limit)
}
func (m *mockOrderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	return m.listFn(ctx, filter)
}

// --- Mock OrderSummaryService ---

type mockSummaryService struct {
	summaryFn func(ctx context.Context, postalCode string, subtotal decimal.Decimal) (*services.OrderSummary, error)
	pincodeFn func(ctx context.Context, postalCode string) (*services.PincodeInfo, error)
}

func (m *mockSummaryService) ComputeOrderSummary(ctx context.Context, postalCode string, subtotal decimal.Decimal) (*services.OrderSummary, error) {
	return m.summaryFn(ctx, postalCode, subtotal)
}
func (m *mockSummaryService) Quote(context.Context, string, decimal.Decimal, decimal.Decimal) (*services.Quote, error) {
	panic("not used")
}
func (m *mockSummaryService) CheckPincode(ctx context.Context, postalCode string) (*services.PincodeInfo, error) {
	return m.pincodeFn(ctx, postalCode)
}

// --- Mock AbandonedCartService ---

type mockAbandonedService struct {
	previewFn func(ctx context.Context, userID, cartID uuid.UUID) (*services.AbandonedCartDiscount, error)
	applyFn   func(ctx context.Context, userID, cartID uuid.UUID) (*services.AbandonedCartDiscount, error)
}

func (m *mockAbandonedService) Preview(ctx context.Context, userID, cartID uuid.UUID) (*services.AbandonedCartDiscount, error) {
	return m.previewFn(ctx, userID, cartID)
}
func (m *mockAbandonedService) Apply(ctx context.Context, userID, cartID uuid.UUID) (*services.AbandonedCartDiscount, error) {
	return m.applyFn(ctx, userID, cartID)
}

// --- Helpers ---

var testUserID = uuid.MustParse("6f1c2a44-0d55-4c1e-9b7e-2f4f5d3c9a10")

// withIdentity stands in for the gateway auth middleware.
func withIdentity(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			c.Set("userID", userID)
		}
		c.Set("role", role)
		c.Next()
	}
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
