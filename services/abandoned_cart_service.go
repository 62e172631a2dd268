package services

import (
	"context"
	"errors"

	"settlement-service/apperrors"
	"settlement-service/models"
	"settlement-service/pricing"
	"settlement-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	msgNoAbandonedItems  = "No abandoned items found for this cart."
	msgPartialDiscount   = "Partial discount applied. Some items do not qualify."
	msgDiscountSucceeded = "Discount applied successfully."
)

// AbandonedCartDiscount is the per-line evaluation of a returning cart.
type AbandonedCartDiscount struct {
	CartID  uuid.UUID `json:"cart_id"`
	Message string    `json:"message"`
	pricing.AbandonedDiscount
}

// AbandonedCartService prices a returning cart against its abandonment snapshot.
type AbandonedCartService interface {
	Preview(ctx context.Context, userID, cartID uuid.UUID) (*AbandonedCartDiscount, error)
	Apply(ctx context.Context, userID, cartID uuid.UUID) (*AbandonedCartDiscount, error)
}

type abandonedCartServiceImpl struct {
	carts  repository.CartRepository
	logger *zap.Logger
}

func NewAbandonedCartService(carts repository.CartRepository, logger *zap.Logger) AbandonedCartService {
	return &abandonedCartServiceImpl{carts: carts, logger: logger}
}

func (s *abandonedCartServiceImpl) Preview(ctx context.Context, userID, cartID uuid.UUID) (*AbandonedCartDiscount, error) {
	cart, snapshot, err := s.load(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}
	result := &AbandonedCartDiscount{
		CartID:            cartID,
		AbandonedDiscount: pricing.MatchAbandonedItems(cart.Items, snapshot),
	}
	switch {
	case len(snapshot) == 0:
		result.Message = msgNoAbandonedItems
	case result.Partial():
		result.Message = msgPartialDiscount
	default:
		result.Message = msgDiscountSucceeded
	}
	return result, nil
}

// Apply stores the matched discount on the cart.
func (s *abandonedCartServiceImpl) Apply(ctx context.Context, userID, cartID uuid.UUID) (*AbandonedCartDiscount, error) {
	cart, snapshot, err := s.load(ctx, userID, cartID)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, apperrors.Validation("No abandoned cart items found")
	}

	result := &AbandonedCartDiscount{
		CartID:            cartID,
		AbandonedDiscount: pricing.MatchAbandonedItems(cart.Items, snapshot),
		Message:           msgDiscountSucceeded,
	}
	if result.Partial() {
		result.Message = msgPartialDiscount
	}

	if err := s.carts.SetDiscountedTotal(ctx, cartID, result.TotalDiscount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Cart not found")
		}
		s.logger.Error("Failed to store abandoned cart discount", zap.String("cart_id", cartID.String()), zap.Error(err))
		return nil, apperrors.Internal("Failed to apply discount", err)
	}

	s.logger.Info("Abandoned cart discount applied",
		zap.String("cart_id", cartID.String()),
		zap.String("total_discount", result.TotalDiscount.StringFixed(2)),
		zap.Int("unmatched", len(result.UnmatchedItems)),
	)
	return result, nil
}

func (s *abandonedCartServiceImpl) load(ctx context.Context, userID, cartID uuid.UUID) (*models.Cart, []models.AbandonedCartItem, error) {
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("Cart not found")
		}
		return nil, nil, apperrors.Internal("Failed to load cart", err)
	}
	if cart.UserID != userID {
		return nil, nil, apperrors.NotFound("Cart not found")
	}

	snapshot, err := s.carts.ListAbandonedItems(ctx, cartID)
	if err != nil {
		return nil, nil, apperrors.Internal("Failed to load abandoned cart items", err)
	}
	return cart, snapshot, nil
}
