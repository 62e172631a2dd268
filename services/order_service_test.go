package services

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"settlement-service/apperrors"
	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orderFixture struct {
	svc      *orderServiceImpl
	orders   *fakeOrderRepo
	coupons  *fakeCouponRepo
	carts    *fakeCartRepo
	couponSv *couponServiceImpl
	notifier *fakeNotifier
	mailer   *fakeMailer
	sns      *fakeSNS
	metrics  *fakeMetrics
	userID   uuid.UUID
	address  *models.Address
}

func newOrderFixture(t *testing.T, config *fakeConfigRepo, coupons *fakeCouponRepo, carts *fakeCartRepo) *orderFixture {
	t.Helper()
	userID := uuid.New()
	address := &models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		FullName:   "Asha Rao",
		Line1:      "12 Marine Drive",
		City:       "Mumbai",
		State:      "Maharashtra",
		PostalCode: "400001",
	}
	users := &fakeUserRepo{
		users:     map[uuid.UUID]*models.User{userID: {ID: userID, Email: "asha@example.com", FirstName: "Asha"}},
		addresses: map[uuid.UUID]*models.Address{address.ID: address},
	}

	f := &orderFixture{
		orders:   newFakeOrderRepo(),
		coupons:  coupons,
		carts:    carts,
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
		sns:      &fakeSNS{},
		metrics:  newFakeMetrics(),
		userID:   userID,
		address:  address,
	}
	cf := newCouponFixture(coupons, carts)
	f.couponSv = cf.svc

	f.svc = NewOrderService(OrderServiceDeps{
		Orders:      f.orders,
		Users:       users,
		Carts:       carts,
		TxManager:   fakeTx{},
		Summary:     NewOrderSummaryService(config, zap.NewNop()),
		Coupons:     f.couponSv,
		Notifier:    f.notifier,
		Mailer:      f.mailer,
		SNS:         f.sns,
		SNSTopicArn: "arn:aws:sns:us-east-1:000000000000:order-events",
		Metrics:     f.metrics,
		Logger:      zap.NewNop(),
	}).(*orderServiceImpl)
	f.svc.background = func(fn func()) { fn() }
	return f
}

func productItem(qty int, price string) models.OrderItemRequest {
	id := uuid.New()
	return models.OrderItemRequest{ProductID: &id, Quantity: qty, Price: dec(price)}
}

func (f *orderFixture) request(subtotal string) *models.CreateOrderRequest {
	return &models.CreateOrderRequest{
		Items:          []models.OrderItemRequest{productItem(2, "500")},
		AddressID:      f.address.ID,
		Subtotal:       subtotal,
		PaymentMethod:  "razorpay",
		GatewayOrderID: "order_" + uuid.NewString()[:8],
	}
}

func TestCreateOrder_WithoutDiscount(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())

	order, err := f.svc.CreateOrder(context.Background(), f.userID, f.request("1000"))
	require.NoError(t, err)

	assert.Equal(t, "1000.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "180.00", order.TaxAmount.StringFixed(2))
	assert.Equal(t, "CGST+SGST", order.TaxType)
	assert.Equal(t, "1180.00", order.TotalBeforeDiscount.StringFixed(2))
	assert.True(t, order.DiscountAmount.IsZero())
	assert.Equal(t, "1180.00", order.FinalAmount.StringFixed(2))
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Contains(t, order.ShippingAddress, "400001")
	require.Len(t, order.Items, 1)
	require.NotNil(t, order.Payment)
	assert.Equal(t, models.PaymentStatusPending, order.Payment.Status)

	stored, ok := f.orders.orders[order.ID]
	require.True(t, ok)
	assert.Equal(t, order.PaymentID, stored.PaymentID)
	assert.Contains(t, f.orders.payments, order.PaymentID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, models.CategoryOrder, f.notifier.sent[0].Category)
	require.Len(t, f.mailer.orders, 1)
	assert.Equal(t, "asha@example.com", f.mailer.orders[0].To)
	assert.Equal(t, "1180.00", f.mailer.orders[0].FinalAmount)
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricOrdersCreated))

	require.Equal(t, 1, f.sns.count())
	var event models.OrderEvent
	require.NoError(t, json.Unmarshal(f.sns.messages[0], &event))
	assert.Equal(t, "order_created", event.EventType)
	assert.Equal(t, "1180.00", event.FinalAmount)
}

func TestCreateOrder_SideEffectsTrackedByBackground(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	bg := &Background{}
	f.svc.background = bg.Go

	_, err := f.svc.CreateOrder(context.Background(), f.userID, f.request("1000"))
	require.NoError(t, err)
	bg.Wait()

	assert.Len(t, f.notifier.sent, 1)
	assert.Len(t, f.mailer.orders, 1)
	assert.Equal(t, 1, f.sns.count())
}

func TestBackground_WaitBlocksUntilWorkReturns(t *testing.T) {
	bg := &Background{}
	release := make(chan struct{})
	var finished atomic.Bool
	bg.Go(func() {
		<-release
		finished.Store(true)
	})

	waited := make(chan struct{})
	go func() {
		bg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned before work finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-waited
	assert.True(t, finished.Load())
}

func TestCreateOrder_ValidationHappensBeforeWrites(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	pid, vid := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		mutate func(r *models.CreateOrderRequest)
		kind   apperrors.Kind
		msg    string
	}{
		{"non numeric subtotal", func(r *models.CreateOrderRequest) { r.Subtotal = "abc" }, apperrors.KindValidation, "Subtotal must be a valid positive number"},
		{"zero subtotal", func(r *models.CreateOrderRequest) { r.Subtotal = "0" }, apperrors.KindValidation, "Subtotal must be a valid positive number"},
		{"item without reference", func(r *models.CreateOrderRequest) {
			r.Items = append(r.Items, models.OrderItemRequest{Quantity: 1})
		}, apperrors.KindValidation, "Item 2: Must have either productId or variantId."},
		{"item with both references", func(r *models.CreateOrderRequest) {
			r.Items = []models.OrderItemRequest{{ProductID: &pid, VariantID: &vid, Quantity: 1}}
		}, apperrors.KindValidation, "Item 1: Cannot have both productId and variantId."},
		{"discount without cart", func(r *models.CreateOrderRequest) { r.DiscountCode = "SAVE10AB" }, apperrors.KindValidation, "Cart ID is required when applying a discount code"},
		{"unknown address", func(r *models.CreateOrderRequest) { r.AddressID = uuid.New() }, apperrors.KindNotFound, "Address not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("1000")
			tt.mutate(req)

			_, err := f.svc.CreateOrder(context.Background(), f.userID, req)
			require.Error(t, err)
			appErr := apperrors.From(err)
			assert.Equal(t, tt.kind, appErr.Kind)
			assert.Equal(t, tt.msg, appErr.Message)
		})
	}
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.orders.payments)
}

func TestCreateOrder_ForeignAddress(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())

	_, err := f.svc.CreateOrder(context.Background(), uuid.New(), f.request("1000"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	assert.Empty(t, f.orders.orders)
}

func TestCreateOrder_UnserviceablePincode(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	f.address.PostalCode = "999999"

	_, err := f.svc.CreateOrder(context.Background(), f.userID, f.request("1000"))
	require.Error(t, err)
	assert.Equal(t, "Invalid pincode", apperrors.From(err).Message)
	assert.Empty(t, f.orders.orders)
}

func TestCreateOrder_WithRedeemedCoupon(t *testing.T) {
	coupons := newFakeCouponRepo(globalCoupon("SAVE10AB"))
	carts := newFakeCartRepo()
	f := newOrderFixture(t, defaultConfig(), coupons, carts)
	cart := cartFor(f.userID)
	carts.carts[cart.ID] = cart
	ctx := context.Background()

	_, err := f.couponSv.RedeemCoupon(ctx, f.userID, "SAVE10AB", cart.ID)
	require.NoError(t, err)

	req := f.request("1000")
	req.DiscountCode = "SAVE10AB"
	req.CartID = &cart.ID

	order, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)

	assert.Equal(t, "SAVE10AB", order.DiscountCode)
	assert.Equal(t, "118.00", order.DiscountAmount.StringFixed(2))
	assert.Equal(t, "1062.00", order.FinalAmount.StringFixed(2))

	stored := coupons.get("SAVE10AB")
	assert.Equal(t, 1, stored.RedeemCount)
	assert.Empty(t, coupons.openRedemptions(cart.ID))

	// coupon_settled goes to the promotion topic
	assert.Equal(t, 1, f.sns.count())
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricOrdersCreated))

	// the settled coupon cannot pay for a second order
	_, err = f.svc.CreateOrder(ctx, f.userID, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestCreateOrder_DiscountIsClamped(t *testing.T) {
	coupon := globalCoupon("FREEBIE1")
	coupon.Discount = dec("100")
	coupons := newFakeCouponRepo(coupon)
	carts := newFakeCartRepo()
	f := newOrderFixture(t, defaultConfig(), coupons, carts)
	cart := cartFor(f.userID)
	carts.carts[cart.ID] = cart
	ctx := context.Background()

	_, err := f.couponSv.RedeemCoupon(ctx, f.userID, "FREEBIE1", cart.ID)
	require.NoError(t, err)

	req := f.request("1000")
	req.DiscountCode = "FREEBIE1"
	req.CartID = &cart.ID

	order, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)
	assert.True(t, order.FinalAmount.IsZero())
	assert.False(t, order.FinalAmount.IsNegative())
}

func TestCreateOrder_AbandonedCartCouponDiscountsMatchedLines(t *testing.T) {
	coupons := newFakeCouponRepo()
	carts := newFakeCartRepo()
	f := newOrderFixture(t, defaultConfig(), coupons, carts)

	shirt, mug := uuid.New(), uuid.New()
	cart := &models.Cart{
		ID:     uuid.New(),
		UserID: f.userID,
		Items: []models.CartItem{
			{ProductID: &shirt, Name: "Shirt", UnitPrice: dec("500"), Quantity: 2},
			{ProductID: &mug, Name: "Mug", UnitPrice: dec("200"), Quantity: 1},
		},
	}
	carts.carts[cart.ID] = cart
	carts.abandoned[cart.ID] = []models.AbandonedCartItem{
		{CartID: cart.ID, ProductID: &shirt, Quantity: 2, Discount: dec("10")},
	}
	ctx := context.Background()

	coupon, err := f.couponSv.IssueAbandonedCartCoupon(ctx, cart, abandonedTier(1, 24, "10"), testNow)
	require.NoError(t, err)
	_, err = f.couponSv.RedeemCoupon(ctx, f.userID, coupon.Code, cart.ID)
	require.NoError(t, err)

	req := f.request("1200")
	req.DiscountCode = coupon.Code
	req.CartID = &cart.ID

	order, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)
	assert.Equal(t, "100.00", order.DiscountAmount.StringFixed(2))
	assert.Equal(t, "1316.00", order.FinalAmount.StringFixed(2))
}

func TestCreateOrder_CouponNotOnCart(t *testing.T) {
	coupons := newFakeCouponRepo(globalCoupon("ELSEWHER"))
	carts := newFakeCartRepo()
	f := newOrderFixture(t, defaultConfig(), coupons, carts)
	cartID := uuid.New()

	req := f.request("1000")
	req.DiscountCode = "ELSEWHER"
	req.CartID = &cartID

	_, err := f.svc.CreateOrder(context.Background(), f.userID, req)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Empty(t, f.orders.orders)
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	ctx := context.Background()

	req := f.request("1000")
	req.GatewayOrderID = "order_RZP123"
	order, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmPayment(ctx, "order_RZP123", "pay_ABC")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, confirmed.Status)

	payment := f.orders.payments[order.PaymentID]
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, "pay_ABC", *payment.TransactionID)

	again, err := f.svc.ConfirmPayment(ctx, "order_RZP123", "pay_ABC")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, again.Status)
	assert.Equal(t, 1, f.metrics.count(awspkg.MetricOrdersConfirmed))
}

func TestCreateOrder_DuplicateGatewayReference(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	ctx := context.Background()

	req := f.request("1000")
	req.GatewayOrderID = "order_RESUBMIT"
	first, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)

	again := f.request("1000")
	again.GatewayOrderID = "order_RESUBMIT"
	_, err = f.svc.CreateOrder(ctx, f.userID, again)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "got %v", err)

	found, err := f.orders.FindByGatewayOrderID(ctx, "order_RESUBMIT")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestConfirmPayment_RecordsPaymentAfterAdminMovedOrder(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	ctx := context.Background()

	req := f.request("1000")
	req.GatewayOrderID = "order_EARLYSHIP"
	order, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, "shipped")
	require.NoError(t, err)

	got, err := f.svc.ConfirmPayment(ctx, "order_EARLYSHIP", "pay_LATE")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status)
	require.NotNil(t, got.Payment)
	assert.Equal(t, models.PaymentStatusSuccess, got.Payment.Status)

	payment := f.orders.payments[order.PaymentID]
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, "pay_LATE", *payment.TransactionID)
	assert.Equal(t, models.OrderStatusShipped, f.orders.orders[order.ID].Status)
	assert.Equal(t, 0, f.metrics.count(awspkg.MetricOrdersConfirmed))
}

func TestConfirmPayment_Errors(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	ctx := context.Background()

	_, err := f.svc.ConfirmPayment(ctx, "order_missing", "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = f.svc.ConfirmPayment(ctx, " ", "")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	req := f.request("1000")
	req.GatewayOrderID = "order_CANCEL"
	order, err := f.svc.CreateOrder(ctx, f.userID, req)
	require.NoError(t, err)
	f.orders.orders[order.ID].Status = models.OrderStatusCancelled

	_, err = f.svc.ConfirmPayment(ctx, "order_CANCEL", "pay_1")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.userID, f.request("1000"))
	require.NoError(t, err)

	_, err = f.svc.UpdateOrderStatus(ctx, order.ID, "lost")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	updated, err := f.svc.UpdateOrderStatus(ctx, order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, updated.Status)
	assert.Equal(t, models.OrderStatusShipped, f.orders.orders[order.ID].Status)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Contains(t, last.Message, "SHIPPED")

	_, err = f.svc.UpdateOrderStatus(ctx, uuid.New(), "shipped")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	ctx := context.Background()
	order, err := f.svc.CreateOrder(ctx, f.userID, f.request("1000"))
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, f.userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, uuid.New(), order.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	mine, total, err := f.svc.ListUserOrders(ctx, f.userID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, mine, 1)
}

func TestCreateOrder_NotificationFailureDoesNotFailOrder(t *testing.T) {
	f := newOrderFixture(t, defaultConfig(), newFakeCouponRepo(), newFakeCartRepo())
	f.notifier.err = assert.AnError

	order, err := f.svc.CreateOrder(context.Background(), f.userID, f.request("250.50"))
	require.NoError(t, err)
	assert.Contains(t, f.orders.orders, order.ID)
	assert.Equal(t, "250.50", order.Subtotal.StringFixed(2))
}
