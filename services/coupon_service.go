package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"settlement-service/apperrors"
	"settlement-service/models"
	awspkg "settlement-service/pkg/aws"
	"settlement-service/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	couponCodeLength   = 8
	couponCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts    = 10

	msgInvalidCode = "Invalid or expired discount code"
	msgCodeUsed    = "Discount code has already been used"
)

// CouponService defines the coupon lifecycle: issue, redeem against a cart, settle against
// an order, and sweep expired auto-issued coupons.
type CouponService interface {
	CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.CouponCode, error)
	IssueAbandonedCartCoupon(ctx context.Context, cart *models.Cart, tier models.AbandonedCartSetting, now time.Time) (*models.CouponCode, error)
	RedeemCoupon(ctx context.Context, userID uuid.UUID, code string, cartID uuid.UUID) (*models.CouponCode, error)
	ValidateForCart(ctx context.Context, userID uuid.UUID, code string, cartID uuid.UUID) (*models.CouponCode, error)
	SettleCoupon(ctx context.Context, cartID uuid.UUID, code string, orderID uuid.UUID) (*models.CouponCode, error)
	PublishSettled(ctx context.Context, coupon *models.CouponCode, cartID, orderID uuid.UUID)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	GetCoupon(ctx context.Context, id uuid.UUID) (*models.CouponCode, error)
	ListCoupons(ctx context.Context, page, limit int) ([]models.CouponCode, int64, error)
	ListAvailableCoupons(ctx context.Context, userID uuid.UUID) ([]models.CouponCode, error)
	DeleteCoupon(ctx context.Context, id uuid.UUID) error
}

type couponServiceImpl struct {
	repo    repository.CouponRepository
	carts   repository.CartRepository
	txm     repository.TxManager
	events  eventPublisher
	metrics awspkg.MetricsRecorder
	logger  *zap.Logger

	now     func() time.Time
	newCode func() (string, error)
}

// NewCouponService creates a new CouponService.
func NewCouponService(
	repo repository.CouponRepository,
	carts repository.CartRepository,
	txm repository.TxManager,
	snsClient awspkg.SNSPublisher,
	snsTopicArn string,
	metrics awspkg.MetricsRecorder,
	logger *zap.Logger,
) CouponService {
	return &couponServiceImpl{
		repo:    repo,
		carts:   carts,
		txm:     txm,
		events:  eventPublisher{client: snsClient, topicArn: snsTopicArn, logger: logger},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		newCode: randomCode,
	}
}

// CreateCoupon issues an admin coupon with a random unique code.
func (s *couponServiceImpl) CreateCoupon(ctx context.Context, req *models.CreateCouponRequest) (*models.CouponCode, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("Coupon name is required")
	}
	if strings.EqualFold(name, models.AbandonedCartCouponName) {
		return nil, apperrors.Validation("Coupon name is reserved for abandoned cart coupons")
	}
	if !req.Discount.IsPositive() || req.Discount.GreaterThan(hundredPercent) {
		return nil, apperrors.Validation("Discount must be greater than 0 and at most 100")
	}
	if !req.ExpiresAt.After(s.now()) {
		return nil, apperrors.Validation("Expiry date must be in the future")
	}
	maxRedeem := req.MaxRedeemCount
	if maxRedeem <= 0 {
		maxRedeem = 1
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, apperrors.Internal("Failed to generate coupon code", err)
		}
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return nil, apperrors.Internal("Failed to create coupon", err)
		}
		if exists {
			continue
		}

		coupon := &models.CouponCode{
			Name:           name,
			Code:           code,
			Discount:       req.Discount,
			ExpiresAt:      req.ExpiresAt,
			IsActive:       true,
			MaxRedeemCount: maxRedeem,
			ShowOnHomepage: req.ShowOnHomepage,
			UserID:         req.UserID,
		}
		if err := s.repo.Create(ctx, coupon); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			s.logger.Error("Failed to create coupon", zap.Error(err))
			return nil, apperrors.Internal("Failed to create coupon", err)
		}

		s.logger.Info("Coupon created", zap.String("code", coupon.Code), zap.String("name", coupon.Name))
		return coupon, nil
	}

	s.logger.Warn("coupon code space exhausted", zap.Int("attempts", maxCodeAttempts))
	return nil, apperrors.Conflict("Could not generate a unique coupon code")
}

// IssueAbandonedCartCoupon finds or creates the cart's deterministic coupon. An expired coupon
// that was never redeemed is re-armed with the tier's discount and lifetime.
func (s *couponServiceImpl) IssueAbandonedCartCoupon(ctx context.Context, cart *models.Cart, tier models.AbandonedCartSetting, now time.Time) (*models.CouponCode, error) {
	owner := cart.UserID
	expiresAt := now.Add(tier.CouponLifetime())
	coupon := &models.CouponCode{
		Name:           models.AbandonedCartCouponName,
		Code:           models.AbandonedCartCode(cart.ID),
		Discount:       tier.DiscountToBeGivenInPercent,
		ExpiresAt:      expiresAt,
		IsActive:       true,
		MaxRedeemCount: 1,
		ShowOnHomepage: false,
		UserID:         &owner,
	}

	created, err := s.repo.CreateIfAbsent(ctx, coupon)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue abandoned cart coupon", err)
	}
	if created {
		s.logger.Info("Abandoned cart coupon issued", zap.String("code", coupon.Code))
		return coupon, nil
	}

	existing, err := s.repo.FindByCode(ctx, coupon.Code)
	if err != nil {
		return nil, apperrors.Internal("Failed to load abandoned cart coupon", err)
	}
	if existing.IsActive && existing.ExpiresAt.After(now) {
		return existing, nil
	}
	if existing.Used || existing.RedeemCount > 0 {
		return existing, nil
	}

	rearmed, err := s.repo.Rearm(ctx, existing.ID, tier.DiscountToBeGivenInPercent, expiresAt)
	if err != nil {
		return nil, apperrors.Internal("Failed to re-arm abandoned cart coupon", err)
	}
	if rearmed {
		existing.Discount = tier.DiscountToBeGivenInPercent
		existing.ExpiresAt = expiresAt
		existing.IsActive = true
		s.logger.Info("Abandoned cart coupon re-armed", zap.String("code", existing.Code))
	}
	return existing, nil
}

// RedeemCoupon binds the coupon to the user's cart, releasing whatever coupon the cart held.
func (s *couponServiceImpl) RedeemCoupon(ctx context.Context, userID uuid.UUID, code string, cartID uuid.UUID) (*models.CouponCode, error) {
	if _, err := s.loadCart(ctx, userID, cartID); err != nil {
		return nil, err
	}
	coupon, err := s.loadRedeemable(ctx, userID, code)
	if err != nil {
		return nil, err
	}

	if coupon.Used && coupon.CartID != nil {
		if *coupon.CartID == cartID {
			return coupon, nil
		}
		recordCount(ctx, s.metrics, s.logger, awspkg.MetricCouponConflicts)
		return nil, apperrors.Conflict(msgCodeUsed)
	}

	err = s.txm.Do(ctx, func(ctx context.Context) error {
		claimed, err := s.repo.Claim(ctx, coupon.ID, cartID, userID, s.now())
		if err != nil {
			return err
		}
		if !claimed {
			return apperrors.Conflict(msgCodeUsed)
		}
		released, err := s.repo.ReleaseOthers(ctx, cartID, coupon.ID)
		if err != nil {
			return err
		}
		if released > 0 {
			s.logger.Info("Released previous coupon from cart", zap.String("cart_id", cartID.String()), zap.Int64("count", released))
		}
		if err := s.repo.DeleteOpenRedemptions(ctx, cartID, coupon.ID); err != nil {
			return err
		}
		return s.repo.UpsertRedemption(ctx, &models.CouponRedemption{
			CouponID: coupon.ID,
			CartID:   cartID,
			UserID:   userID,
		})
	})
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			recordCount(ctx, s.metrics, s.logger, awspkg.MetricCouponConflicts)
			return nil, err
		}
		s.logger.Error("Failed to redeem coupon", zap.String("code", coupon.Code), zap.Error(err))
		return nil, apperrors.Internal("Failed to redeem coupon", err)
	}

	coupon.Used = true
	coupon.CartID = &cartID
	recordCount(ctx, s.metrics, s.logger, awspkg.MetricCouponsRedeemed)
	s.events.publish(ctx, "coupon_redeemed", models.CouponEvent{
		EventType:  "coupon_redeemed",
		CouponID:   coupon.ID.String(),
		CouponCode: coupon.Code,
		CartID:     cartID.String(),
		UserID:     userID.String(),
		Discount:   coupon.Discount.String(),
		Timestamp:  s.now(),
		ExpiresAt:  &coupon.ExpiresAt,
	})
	return coupon, nil
}

// ValidateForCart checks that code is redeemed on cartID and not yet settled.
func (s *couponServiceImpl) ValidateForCart(ctx context.Context, userID uuid.UUID, code string, cartID uuid.UUID) (*models.CouponCode, error) {
	coupon, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(msgInvalidCode)
		}
		return nil, apperrors.Internal("Failed to load coupon", err)
	}
	if !coupon.RedeemableBy(userID) {
		return nil, apperrors.NotFound(msgInvalidCode)
	}
	if !coupon.Used || coupon.CartID == nil || *coupon.CartID != cartID {
		return nil, apperrors.Validation("Discount code is not applied to this cart")
	}
	if _, err := s.repo.FindOpenRedemption(ctx, coupon.ID, cartID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Conflict(msgCodeUsed)
		}
		return nil, apperrors.Internal("Failed to load coupon redemption", err)
	}
	return coupon, nil
}

// SettleCoupon links the cart's open redemption to orderID and counts it. It runs inside the
// caller's transaction when ctx carries one. Settling the same order twice is a no-op.
func (s *couponServiceImpl) SettleCoupon(ctx context.Context, cartID uuid.UUID, code string, orderID uuid.UUID) (*models.CouponCode, error) {
	coupon, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(msgInvalidCode)
		}
		return nil, apperrors.Internal("Failed to load coupon", err)
	}

	err = s.txm.Do(ctx, func(ctx context.Context) error {
		linked, err := s.repo.LinkRedemption(ctx, coupon.ID, cartID, orderID)
		if err != nil {
			return err
		}
		if !linked {
			red, err := s.repo.FindRedemption(ctx, coupon.ID, cartID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Conflict("Discount code is not redeemed on this cart")
			}
			if err != nil {
				return err
			}
			if red.Settled() && *red.OrderID == orderID {
				return errAlreadySettled
			}
			return apperrors.Conflict(msgCodeUsed)
		}

		counted, err := s.repo.IncrementRedeemCount(ctx, coupon.ID)
		if err != nil {
			return err
		}
		if !counted {
			return apperrors.Conflict("Discount code has reached its redemption limit")
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadySettled):
		return coupon, nil
	case apperrors.IsKind(err, apperrors.KindConflict):
		recordCount(ctx, s.metrics, s.logger, awspkg.MetricCouponConflicts)
		return nil, err
	case err != nil:
		s.logger.Error("Failed to settle coupon", zap.String("code", coupon.Code), zap.Error(err))
		return nil, apperrors.Internal("Failed to settle coupon", err)
	}

	coupon.RedeemCount++
	if coupon.Exhausted() {
		coupon.ShowOnHomepage = false
	} else {
		coupon.Used = false
		coupon.CartID = nil
	}
	return coupon, nil
}

// PublishSettled emits coupon_settled once the settling transaction has committed.
func (s *couponServiceImpl) PublishSettled(ctx context.Context, coupon *models.CouponCode, cartID, orderID uuid.UUID) {
	recordCount(ctx, s.metrics, s.logger, awspkg.MetricCouponsSettled)
	s.events.publish(ctx, "coupon_settled", models.CouponEvent{
		EventType:  "coupon_settled",
		CouponID:   coupon.ID.String(),
		CouponCode: coupon.Code,
		CartID:     cartID.String(),
		OrderID:    orderID.String(),
		Discount:   coupon.Discount.String(),
		Timestamp:  s.now(),
	})
}

// SweepExpired deletes expired abandoned-cart coupons nobody redeemed.
func (s *couponServiceImpl) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.Sweep(ctx, now)
	if err != nil {
		s.logger.Error("Failed to sweep expired coupons", zap.Error(err))
		return 0, apperrors.Internal("Failed to sweep expired coupons", err)
	}
	if n > 0 {
		s.logger.Info("Swept expired abandoned cart coupons", zap.Int64("count", n))
	}
	recordValue(ctx, s.metrics, s.logger, awspkg.MetricCouponsSwept, float64(n))
	return n, nil
}

func (s *couponServiceImpl) GetCoupon(ctx context.Context, id uuid.UUID) (*models.CouponCode, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Coupon not found")
		}
		return nil, apperrors.Internal("Failed to load coupon", err)
	}
	return coupon, nil
}

func (s *couponServiceImpl) ListCoupons(ctx context.Context, page, limit int) ([]models.CouponCode, int64, error) {
	coupons, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		s.logger.Error("Failed to list coupons", zap.Error(err))
		return nil, 0, apperrors.Internal("Failed to list coupons", err)
	}
	return coupons, total, nil
}

func (s *couponServiceImpl) ListAvailableCoupons(ctx context.Context, userID uuid.UUID) ([]models.CouponCode, error) {
	coupons, err := s.repo.ListAvailable(ctx, userID, s.now())
	if err != nil {
		s.logger.Error("Failed to list available coupons", zap.Error(err))
		return nil, apperrors.Internal("Failed to list coupons", err)
	}
	return coupons, nil
}

func (s *couponServiceImpl) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("Coupon not found")
		}
		s.logger.Error("Failed to delete coupon", zap.String("id", id.String()), zap.Error(err))
		return apperrors.Internal("Failed to delete coupon", err)
	}
	s.logger.Info("Coupon deleted", zap.String("id", id.String()))
	return nil
}

func (s *couponServiceImpl) loadCart(ctx context.Context, userID, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Cart not found")
		}
		return nil, apperrors.Internal("Failed to load cart", err)
	}
	if cart.UserID != userID {
		return nil, apperrors.NotFound("Cart not found")
	}
	return cart, nil
}

// loadRedeemable applies the read-side checks. Out-of-scope coupons look unknown.
func (s *couponServiceImpl) loadRedeemable(ctx context.Context, userID uuid.UUID, code string) (*models.CouponCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Validation("Discount code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(msgInvalidCode)
		}
		return nil, apperrors.Internal("Failed to load coupon", err)
	}
	if !coupon.IsActive || !coupon.RedeemableBy(userID) {
		return nil, apperrors.NotFound(msgInvalidCode)
	}
	if !coupon.ExpiresAt.After(s.now()) {
		return nil, apperrors.Validation("Discount code has expired")
	}
	if coupon.Exhausted() {
		return nil, apperrors.Conflict(msgCodeUsed)
	}
	return coupon, nil
}

var hundredPercent = decimal.NewFromInt(100)

var errAlreadySettled = errors.New("redemption already settled for this order")

func randomCode() (string, error) {
	n := big.NewInt(int64(len(couponCodeAlphabet)))
	b := make([]byte, couponCodeLength)
	for i := range b {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = couponCodeAlphabet[idx.Int64()]
	}
	return string(b), nil
}
