package repository

import (
	"context"
	"time"

	"settlement-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CartRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	FindAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error)
	MarkReminded(ctx context.Context, cartID uuid.UUID, at time.Time) (bool, error)
	ClearReminder(ctx context.Context, cartID uuid.UUID) error
	SaveAbandonedItems(ctx context.Context, items []models.AbandonedCartItem) error
	ListAbandonedItems(ctx context.Context, cartID uuid.UUID) ([]models.AbandonedCartItem, error)
	SetDiscountedTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error
}

type GormCartRepository struct {
	db *gorm.DB
}

func NewGormCartRepository(db *gorm.DB) CartRepository {
	return &GormCartRepository{db: db}
}

func (r *GormCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := conn(ctx, r.db).
		Preload("Items").
		Preload("User").
		Where("id = ?", id).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindAbandoned returns non-empty, never-reminded carts of registered users idle since before
// cutoff, oldest first.
func (r *GormCartRepository) FindAbandoned(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error) {
	var carts []models.Cart
	err := conn(ctx, r.db).
		Preload("Items").
		Preload("User").
		Joins("JOIN users ON users.id = carts.user_id").
		Where("carts.updated_at < ? AND carts.reminder_count = 0 AND users.is_guest = ?", cutoff, false).
		Where("EXISTS (SELECT 1 FROM cart_items WHERE cart_items.cart_id = carts.id)").
		Order("carts.updated_at ASC").
		Limit(limit).
		Find(&carts).Error
	return carts, err
}

// MarkReminded flips reminder_count from 0 to 1. It does not touch updated_at, which tracks
// shopper activity.
func (r *GormCartRepository) MarkReminded(ctx context.Context, cartID uuid.UUID, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Cart{}).
		Where("id = ? AND reminder_count = 0", cartID).
		UpdateColumns(map[string]interface{}{"reminder_count": 1, "last_reminder_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearReminder reverts MarkReminded and drops the snapshot taken with it.
func (r *GormCartRepository) ClearReminder(ctx context.Context, cartID uuid.UUID) error {
	if err := conn(ctx, r.db).Where("cart_id = ?", cartID).Delete(&models.AbandonedCartItem{}).Error; err != nil {
		return err
	}
	return conn(ctx, r.db).Model(&models.Cart{}).
		Where("id = ? AND reminder_count = 1", cartID).
		UpdateColumns(map[string]interface{}{"reminder_count": 0, "last_reminder_at": nil}).Error
}

func (r *GormCartRepository) SaveAbandonedItems(ctx context.Context, items []models.AbandonedCartItem) error {
	if len(items) == 0 {
		return nil
	}
	return conn(ctx, r.db).Create(&items).Error
}

func (r *GormCartRepository) ListAbandonedItems(ctx context.Context, cartID uuid.UUID) ([]models.AbandonedCartItem, error) {
	var items []models.AbandonedCartItem
	err := conn(ctx, r.db).Where("cart_id = ?", cartID).Order("created_at ASC").Find(&items).Error
	return items, err
}

func (r *GormCartRepository) SetDiscountedTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error {
	res := conn(ctx, r.db).Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("discounted_abandoned_total", total)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
