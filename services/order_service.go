package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"settlement-service/apperrors"
	applog "settlement-service/logger"
	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"
	"settlement-service/pricing"
	"settlement-service/repository"
	"settlement-service/sender"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderMailer sends the order confirmation email.
type OrderMailer interface {
	SendOrderConfirmation(ctx context.Context, data sender.OrderConfirmationEmail) error
}

// OrderService settles checkouts and moves orders through their statuses.
type OrderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error)
	ConfirmPayment(ctx context.Context, gatewayOrderID, transactionID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error)
}

// OrderServiceDeps groups the collaborators of the order service.
type OrderServiceDeps struct {
	Orders      repository.OrderRepository
	Users       repository.UserRepository
	Carts       repository.CartRepository
	TxManager   repository.TxManager
	Summary     OrderSummaryService
	Coupons     CouponService
	Notifier    sender.Notifier
	Mailer      OrderMailer
	SNS         awspkg.SNSPublisher
	SNSTopicArn string
	Metrics     awspkg.MetricsRecorder
	Logger      *zap.Logger
	// Background tracks post-commit side effects. Optional; a private group is used when nil.
	Background *Background
}

// Background runs fire-and-forget work on its own goroutines and lets shutdown wait for it.
type Background struct {
	wg sync.WaitGroup
}

func (b *Background) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Wait blocks until every function started with Go has returned.
func (b *Background) Wait() {
	b.wg.Wait()
}

type orderServiceImpl struct {
	orders   repository.OrderRepository
	users    repository.UserRepository
	carts    repository.CartRepository
	txm      repository.TxManager
	summary  OrderSummaryService
	coupons  CouponService
	notifier sender.Notifier
	mailer   OrderMailer
	events   eventPublisher
	metrics  awspkg.MetricsRecorder
	logger   *zap.Logger

	// background runs post-commit side effects.
	background func(func())
}

func NewOrderService(deps OrderServiceDeps) OrderService {
	bg := deps.Background
	if bg == nil {
		bg = &Background{}
	}
	return &orderServiceImpl{
		orders:     deps.Orders,
		users:      deps.Users,
		carts:      deps.Carts,
		txm:        deps.TxManager,
		summary:    deps.Summary,
		coupons:    deps.Coupons,
		notifier:   deps.Notifier,
		mailer:     deps.Mailer,
		events:     eventPublisher{client: deps.SNS, topicArn: deps.SNSTopicArn, logger: deps.Logger},
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		background: bg.Go,
	}
}

// CreateOrder validates the checkout, prices it and persists order, payment and coupon
// settlement in one transaction. Notifications run after commit and never fail the order.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, userID uuid.UUID, req *models.CreateOrderRequest) (*models.Order, error) {
	subtotal, err := decimal.NewFromString(strings.TrimSpace(req.Subtotal))
	if err != nil || !subtotal.IsPositive() {
		return nil, apperrors.Validation("Subtotal must be a valid positive number")
	}
	if len(req.Items) == 0 {
		return nil, apperrors.Validation("Order must contain at least one item")
	}
	lines := make([]models.OrderLine, 0, len(req.Items))
	for i, item := range req.Items {
		line, err := models.NewOrderLine(i, item)
		if err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		lines = append(lines, line)
	}
	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		return nil, apperrors.Validation("Payment method is required")
	}
	code := strings.TrimSpace(req.DiscountCode)
	if code != "" && (req.CartID == nil || *req.CartID == uuid.Nil) {
		return nil, apperrors.Validation("Cart ID is required when applying a discount code")
	}

	address, err := s.users.FindAddress(ctx, req.AddressID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Address not found")
		}
		return nil, apperrors.Internal("Failed to load address", err)
	}
	if address.UserID != userID {
		return nil, apperrors.NotFound("Address not found")
	}

	quote, err := s.summary.Quote(ctx, address.PostalCode, subtotal, decimal.Zero)
	if err != nil {
		return nil, err
	}

	breakdown := quote.Breakdown
	var coupon *models.CouponCode
	if code != "" {
		coupon, err = s.coupons.ValidateForCart(ctx, userID, code, *req.CartID)
		if err != nil {
			return nil, err
		}
		discount, err := s.discountFor(ctx, coupon, *req.CartID, breakdown)
		if err != nil {
			return nil, err
		}
		breakdown = pricing.Compute(quote.Jurisdiction, quote.IsTaxInclusive, subtotal, discount)
	}

	shipping := address.Formatted()
	payment := &models.Payment{
		ID:     uuid.New(),
		Method: method,
		Status: models.PaymentStatusPending,
	}
	order := &models.Order{
		ID:                  uuid.New(),
		UserID:              userID,
		AddressID:           address.ID,
		BillingAddress:      shipping,
		ShippingAddress:     shipping,
		Subtotal:            breakdown.Subtotal,
		TaxAmount:           breakdown.TaxAmount,
		TaxType:             breakdown.TaxType,
		AppliedTaxRate:      breakdown.AppliedTaxRate,
		IsTaxInclusive:      breakdown.IsTaxInclusive,
		TotalBeforeDiscount: breakdown.TotalBeforeDiscount,
		DiscountAmount:      breakdown.DiscountAmount,
		FinalAmount:         breakdown.FinalAmount,
		Status:              models.OrderStatusPending,
		GatewayOrderID:      strings.TrimSpace(req.GatewayOrderID),
		CartID:              req.CartID,
		PaymentID:           payment.ID,
		Items:               make([]models.OrderItem, 0, len(lines)),
	}
	if coupon != nil {
		order.DiscountCode = coupon.Code
	}
	for _, line := range lines {
		order.Items = append(order.Items, line.Item())
	}

	var settled *models.CouponCode
	err = s.txm.Do(ctx, func(ctx context.Context) error {
		if err := s.orders.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		if coupon == nil {
			return nil
		}
		var settleErr error
		settled, settleErr = s.coupons.SettleCoupon(ctx, *req.CartID, coupon.Code, order.ID)
		return settleErr
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			applog.For(ctx, s.logger).Warn("Duplicate gateway order reference", zap.String("gateway_order_id", order.GatewayOrderID))
			return nil, apperrors.Conflict("An order already exists for this payment reference")
		}
		applog.For(ctx, s.logger).Error("Failed to create order", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, apperrors.Internal("Failed to create order", err)
	}
	order.Payment = payment

	applog.For(ctx, s.logger).Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("final_amount", order.FinalAmount.StringFixed(2)),
		zap.String("discount_code", order.DiscountCode),
	)

	bg := context.WithoutCancel(ctx)
	s.background(func() {
		recordCount(bg, s.metrics, s.logger, awspkg.MetricOrdersCreated)
		if settled != nil {
			s.coupons.PublishSettled(bg, settled, *req.CartID, order.ID)
		}
		s.publishOrderEvent(bg, "order_created", order)
		s.notify(bg, userID, fmt.Sprintf("Your order #%s has been placed successfully.", shortID(order.ID)))
		s.sendConfirmation(bg, order)
	})
	return order, nil
}

// discountFor prices the coupon. Abandoned-cart coupons only discount lines that still match
// the cart's snapshot.
func (s *orderServiceImpl) discountFor(ctx context.Context, coupon *models.CouponCode, cartID uuid.UUID, b pricing.Breakdown) (decimal.Decimal, error) {
	if !coupon.IsAbandonedCartCoupon() {
		return pricing.PercentOf(b.TotalBeforeDiscount, coupon.Discount), nil
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperrors.NotFound("Cart not found")
		}
		return decimal.Zero, apperrors.Internal("Failed to load cart", err)
	}
	snapshot, err := s.carts.ListAbandonedItems(ctx, cartID)
	if err != nil {
		return decimal.Zero, apperrors.Internal("Failed to load abandoned cart items", err)
	}
	return pricing.MatchAbandonedItems(cart.Items, snapshot).TotalDiscount, nil
}

// ConfirmPayment marks the order behind a gateway reference as paid. Repeated confirmations
// succeed without changing anything.
func (s *orderServiceImpl) ConfirmPayment(ctx context.Context, gatewayOrderID, transactionID string) (*models.Order, error) {
	ref := strings.TrimSpace(gatewayOrderID)
	if ref == "" {
		return nil, apperrors.Validation("Gateway order id is required")
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		return nil, apperrors.Internal("Failed to load order", err)
	}

	if order.Status == models.OrderStatusCancelled {
		return nil, apperrors.Conflict("Order has been cancelled")
	}

	txn := strings.TrimSpace(transactionID)
	var moved, paid bool
	err = s.txm.Do(ctx, func(ctx context.Context) error {
		var err error
		if order.Status == models.OrderStatusPending {
			moved, err = s.orders.TransitionStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusConfirmed)
			if err != nil {
				return err
			}
		}
		// the payment is recorded even when the order already left PENDING
		paid, err = s.orders.MarkPaymentSucceeded(ctx, order.PaymentID, txn)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to confirm payment", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, apperrors.Internal("Failed to confirm payment", err)
	}
	if paid && order.Payment != nil {
		order.Payment.Status = models.PaymentStatusSuccess
		if txn != "" {
			order.Payment.TransactionID = &txn
		}
	}
	if !moved {
		s.logger.Info("Payment already confirmed",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)),
			zap.Bool("payment_recorded", paid),
		)
		return order, nil
	}

	order.Status = models.OrderStatusConfirmed
	applog.For(ctx, s.logger).Info("Payment confirmed", zap.String("order_id", order.ID.String()), zap.String("gateway_order_id", ref))

	bg := context.WithoutCancel(ctx)
	s.background(func() {
		recordCount(bg, s.metrics, s.logger, awspkg.MetricOrdersConfirmed)
		s.publishOrderEvent(bg, "order_confirmed", order)
		s.notify(bg, order.UserID, fmt.Sprintf("Payment received for order #%s.", shortID(order.ID)))
	})
	return order, nil
}

func (s *orderServiceImpl) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, apperrors.Validation("Invalid order status")
	}
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, orderID, next); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		s.logger.Error("Failed to update order status", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, apperrors.Internal("Failed to update order status", err)
	}
	order.Status = next

	bg := context.WithoutCancel(ctx)
	s.background(func() {
		s.publishOrderEvent(bg, "order_status_updated", order)
		s.notify(bg, order.UserID, fmt.Sprintf("Your order #%s is now %s.", shortID(order.ID), next))
	})
	return order, nil
}

// GetOrder returns the order when it belongs to userID.
func (s *orderServiceImpl) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.NotFound("Order not found")
	}
	return order, nil
}

func (s *orderServiceImpl) ListUserOrders(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	orders, total, err := s.orders.FindByUser(ctx, userID, page, limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list orders", err)
	}
	return orders, total, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	orders, total, err := s.orders.FindAll(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list orders", err)
	}
	return orders, total, nil
}

func (s *orderServiceImpl) findOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Order not found")
		}
		return nil, apperrors.Internal("Failed to load order", err)
	}
	return order, nil
}

func (s *orderServiceImpl) publishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	s.events.publish(ctx, eventType, models.OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
		Status:      string(order.Status),
		FinalAmount: order.FinalAmount.StringFixed(2),
		Timestamp:   time.Now(),
	})
}

func (s *orderServiceImpl) notify(ctx context.Context, userID uuid.UUID, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, message, models.CategoryOrder); err != nil {
		s.logger.Warn("failed to create order notification", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (s *orderServiceImpl) sendConfirmation(ctx context.Context, order *models.Order) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.FindUser(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("order confirmation skipped: user lookup failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}

	err = s.mailer.SendOrderConfirmation(ctx, sender.OrderConfirmationEmail{
		UserID:          user.ID,
		To:              user.Email,
		Name:            user.DisplayName(),
		OrderID:         order.ID.String(),
		Subtotal:        order.Subtotal.StringFixed(2),
		TaxType:         order.TaxType,
		TaxRate:         order.AppliedTaxRate.String(),
		TaxInclusive:    order.IsTaxInclusive,
		TaxAmount:       order.TaxAmount.StringFixed(2),
		DiscountCode:    order.DiscountCode,
		DiscountAmount:  order.DiscountAmount.StringFixed(2),
		FinalAmount:     order.FinalAmount.StringFixed(2),
		ShippingAddress: order.ShippingAddress,
	})
	if err != nil {
		s.logger.Error("order confirmation email failed", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
