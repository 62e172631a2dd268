package controllers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"settlement-service/apperrors"
	"settlement-service/controllers"
	"settlement-service/models"
	"settlement-service/pricing"
	"settlement-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	if err := controllers.RegisterValidators(); err != nil {
		panic(err)
	}
}

func setupSummaryRouter(svc *mockSummaryService) *gin.Engine {
	r := gin.New()
	sc := controllers.NewOrderSummaryController(svc)
	r.POST("/order-summary", sc.GetSummary)
	r.GET("/pincodes/:code", sc.CheckPincode)
	return r
}

func TestController_GetSummary(t *testing.T) {
	svc := &mockSummaryService{
		summaryFn: func(_ context.Context, pin string, subtotal decimal.Decimal) (*services.OrderSummary, error) {
			assert.Equal(t, "400001", pin)
			assert.True(t, subtotal.Equal(decimal.NewFromInt(1000)))
			return &services.OrderSummary{
				PostalCode:    pin,
				State:         "Maharashtra",
				TaxType:       pricing.TaxTypeCGSTSGST,
				TaxPercentage: decimal.NewFromInt(18),
				ShippingRate:  decimal.NewFromInt(40),
			}, nil
		},
	}
	r := setupSummaryRouter(svc)

	w := do(r, http.MethodPost, "/order-summary", `{"postal_code":"400001","subtotal":"1000"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pricing.TaxTypeCGSTSGST, resp["tax_type"])
	assert.Equal(t, "40", resp["shipping_rate"])
}

func TestController_GetSummary_RejectsMalformedPincode(t *testing.T) {
	called := false
	svc := &mockSummaryService{
		summaryFn: func(context.Context, string, decimal.Decimal) (*services.OrderSummary, error) {
			called = true
			return nil, errors.New("unreachable")
		},
	}
	r := setupSummaryRouter(svc)

	for _, body := range []string{`{"postal_code":"40001"}`, `{"postal_code":"040001"}`, `{"postal_code":"ABC123"}`, `{}`} {
		w := do(r, http.MethodPost, "/order-summary", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	w := do(r, http.MethodPost, "/order-summary", `{"postal_code":"400001","subtotal":"-5"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestController_GetSummary_ConfigurationError(t *testing.T) {
	svc := &mockSummaryService{
		summaryFn: func(context.Context, string, decimal.Decimal) (*services.OrderSummary, error) {
			return nil, apperrors.Configuration("IGST tax rate not configured")
		},
	}
	r := setupSummaryRouter(svc)

	w := do(r, http.MethodPost, "/order-summary", `{"postal_code":"560001"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"IGST tax rate not configured"}`, w.Body.String())
}

func TestController_CheckPincode(t *testing.T) {
	svc := &mockSummaryService{
		pincodeFn: func(_ context.Context, pin string) (*services.PincodeInfo, error) {
			if pin != "400001" {
				return nil, apperrors.NotFound("Invalid pincode")
			}
			return &services.PincodeInfo{Code: pin, City: "Mumbai", State: "Maharashtra", EstimatedDeliveryDays: 2}, nil
		},
	}
	r := setupSummaryRouter(svc)

	w := do(r, http.MethodGet, "/pincodes/400001", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"estimated_delivery_days":2`)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/pincodes/999999", "").Code)
}

func setupAbandonedRouter(svc *mockAbandonedService, userID string) *gin.Engine {
	r := gin.New()
	ac := controllers.NewAbandonedCartController(svc)
	r.Use(withIdentity(userID, ""))
	r.GET("/abandoned-cart/discount", ac.Preview)
	r.POST("/abandoned-cart/discount/apply", ac.Apply)
	return r
}

func TestController_AbandonedPreview(t *testing.T) {
	cartID := uuid.New()
	svc := &mockAbandonedService{
		previewFn: func(_ context.Context, userID, id uuid.UUID) (*services.AbandonedCartDiscount, error) {
			assert.Equal(t, testUserID, userID)
			return &services.AbandonedCartDiscount{
				CartID:  id,
				Message: "Discount applied successfully.",
				AbandonedDiscount: pricing.AbandonedDiscount{
					TotalDiscount:   decimal.NewFromInt(100),
					DiscountedItems: []pricing.DiscountedItem{{Name: "Shirt", Quantity: 2}},
					UnmatchedItems:  []pricing.UnmatchedItem{},
				},
			}, nil
		},
	}
	r := setupAbandonedRouter(svc, testUserID.String())

	w := do(r, http.MethodGet, "/abandoned-cart/discount?cartId="+cartID.String(), "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "100", resp["total_discount"])
	assert.Equal(t, cartID.String(), resp["cart_id"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/abandoned-cart/discount", "").Code)
}

func TestController_AbandonedApply(t *testing.T) {
	svc := &mockAbandonedService{
		applyFn: func(context.Context, uuid.UUID, uuid.UUID) (*services.AbandonedCartDiscount, error) {
			return nil, apperrors.Validation("No abandoned cart items found")
		},
	}
	r := setupAbandonedRouter(svc, testUserID.String())

	w := do(r, http.MethodPost, "/abandoned-cart/discount/apply", `{"cart_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"No abandoned cart items found"}`, w.Body.String())

	unauth := setupAbandonedRouter(svc, "")
	assert.Equal(t, http.StatusUnauthorized, do(unauth, http.MethodPost, "/abandoned-cart/discount/apply", `{"cart_id":"`+uuid.NewString()+`"}`).Code)
}

type stubNotifications struct {
	items []models.Notification
	err   error
}

func (s *stubNotifications) ListForUser(_ context.Context, _ uuid.UUID, _, _ int) ([]models.Notification, int64, error) {
	return s.items, int64(len(s.items)), s.err
}

func TestController_ListNotifications(t *testing.T) {
	stub := &stubNotifications{items: []models.Notification{{Message: "Your order #ABCD1234 has been placed successfully.", Category: models.CategoryOrder}}}
	r := gin.New()
	nc := controllers.NewNotificationController(stub)
	r.Use(withIdentity(testUserID.String(), ""))
	r.GET("/notifications", nc.List)

	w := do(r, http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ABCD1234")

	stub.err = errors.New("db down")
	w = do(r, http.MethodGet, "/notifications", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch notifications"}`, w.Body.String())
}
