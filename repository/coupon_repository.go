package repository

import (
	"context"
	"time"

	"settlement-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CouponRepository defines coupon and redemption-ledger data access. Every state-changing
// method is a single conditional statement and reports whether it matched a row.
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.CouponCode) error
	CreateIfAbsent(ctx context.Context, coupon *models.CouponCode) (bool, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CouponCode, error)
	FindByCode(ctx context.Context, code string) (*models.CouponCode, error)
	List(ctx context.Context, page, limit int) ([]models.CouponCode, int64, error)
	ListAvailable(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.CouponCode, error)
	Delete(ctx context.Context, id uuid.UUID) error

	Claim(ctx context.Context, couponID, cartID, userID uuid.UUID, now time.Time) (bool, error)
	ReleaseOthers(ctx context.Context, cartID, keepID uuid.UUID) (int64, error)
	Rearm(ctx context.Context, id uuid.UUID, discount decimal.Decimal, expiresAt time.Time) (bool, error)
	IncrementRedeemCount(ctx context.Context, id uuid.UUID) (bool, error)
	Sweep(ctx context.Context, now time.Time) (int64, error)

	UpsertRedemption(ctx context.Context, r *models.CouponRedemption) error
	DeleteOpenRedemptions(ctx context.Context, cartID, keepCouponID uuid.UUID) error
	FindOpenRedemption(ctx context.Context, couponID, cartID uuid.UUID) (*models.CouponRedemption, error)
	FindRedemption(ctx context.Context, couponID, cartID uuid.UUID) (*models.CouponRedemption, error)
	LinkRedemption(ctx context.Context, couponID, cartID, orderID uuid.UUID) (bool, error)
}

type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) CouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) Create(ctx context.Context, coupon *models.CouponCode) error {
	return conn(ctx, r.db).Create(coupon).Error
}

// CreateIfAbsent inserts coupon unless its code already exists.
func (r *GormCouponRepository) CreateIfAbsent(ctx context.Context, coupon *models.CouponCode) (bool, error) {
	res := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(coupon)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormCouponRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.CouponCode{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CouponCode, error) {
	var c models.CouponCode
	if err := conn(ctx, r.db).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*models.CouponCode, error) {
	var c models.CouponCode
	if err := conn(ctx, r.db).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormCouponRepository) List(ctx context.Context, page, limit int) ([]models.CouponCode, int64, error) {
	var (
		coupons []models.CouponCode
		total   int64
	)
	q := conn(ctx, r.db).Model(&models.CouponCode{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset(page, limit)).Limit(limit).Find(&coupons).Error
	return coupons, total, err
}

// ListAvailable returns coupons the user could redeem right now.
func (r *GormCouponRepository) ListAvailable(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.CouponCode, error) {
	var coupons []models.CouponCode
	err := conn(ctx, r.db).
		Where("is_active = ? AND used = ? AND expires_at > ? AND redeem_count < max_redeem_count", true, false, now).
		Where("user_id IS NULL OR user_id = ?", userID).
		Order("created_at DESC").
		Find(&coupons).Error
	return coupons, err
}

func (r *GormCouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := conn(ctx, r.db).Where("id = ?", id).Delete(&models.CouponCode{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Claim binds the coupon to cartID only if it is still unused, unexpired, under its cap and
// in scope for userID.
func (r *GormCouponRepository) Claim(ctx context.Context, couponID, cartID, userID uuid.UUID, now time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&models.CouponCode{}).
		Where("id = ? AND used = ? AND is_active = ? AND expires_at > ? AND redeem_count < max_redeem_count", couponID, false, true, now).
		Where("user_id IS NULL OR user_id = ?", userID).
		Updates(map[string]interface{}{"used": true, "cart_id": cartID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseOthers unbinds every unsettled coupon on cartID except keepID.
func (r *GormCouponRepository) ReleaseOthers(ctx context.Context, cartID, keepID uuid.UUID) (int64, error) {
	res := conn(ctx, r.db).Model(&models.CouponCode{}).
		Where("cart_id = ? AND used = ? AND id <> ? AND redeem_count < max_redeem_count", cartID, true, keepID).
		Updates(map[string]interface{}{"used": false, "cart_id": nil})
	return res.RowsAffected, res.Error
}

// Rearm extends an expired coupon that was never redeemed.
func (r *GormCouponRepository) Rearm(ctx context.Context, id uuid.UUID, discount decimal.Decimal, expiresAt time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&models.CouponCode{}).
		Where("id = ? AND used = ? AND redeem_count = 0", id, false).
		Updates(map[string]interface{}{"expires_at": expiresAt, "discount": discount, "is_active": true})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementRedeemCount records one settled redemption. Reaching the cap hides the coupon from
// the homepage and keeps it bound; otherwise it is unbound for the next cart.
func (r *GormCouponRepository) IncrementRedeemCount(ctx context.Context, id uuid.UUID) (bool, error) {
	const capped = "redeem_count + 1 >= max_redeem_count"
	res := conn(ctx, r.db).Model(&models.CouponCode{}).
		Where("id = ? AND redeem_count < max_redeem_count", id).
		Updates(map[string]interface{}{
			"redeem_count":     gorm.Expr("redeem_count + 1"),
			"show_on_homepage": gorm.Expr("CASE WHEN " + capped + " THEN false ELSE show_on_homepage END"),
			"used":             gorm.Expr(capped),
			"cart_id":          gorm.Expr("CASE WHEN " + capped + " THEN cart_id ELSE NULL END"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Sweep deletes expired auto-issued coupons that were never redeemed.
func (r *GormCouponRepository) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res := conn(ctx, r.db).
		Where("expires_at < ? AND used = ? AND redeem_count = 0 AND max_redeem_count = 1", now, false).
		Where("show_on_homepage = ? AND is_active = ? AND name = ?", false, true, models.AbandonedCartCouponName).
		Where("code LIKE ?", models.AbandonedCartCodePrefix+"%").
		Delete(&models.CouponCode{})
	return res.RowsAffected, res.Error
}

func (r *GormCouponRepository) UpsertRedemption(ctx context.Context, red *models.CouponRedemption) error {
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "coupon_id"}, {Name: "cart_id"}},
			DoNothing: true,
		}).
		Create(red).Error
}

// DeleteOpenRedemptions drops unsettled ledger rows on cartID for other coupons.
func (r *GormCouponRepository) DeleteOpenRedemptions(ctx context.Context, cartID, keepCouponID uuid.UUID) error {
	return conn(ctx, r.db).
		Where("cart_id = ? AND order_id IS NULL AND coupon_id <> ?", cartID, keepCouponID).
		Delete(&models.CouponRedemption{}).Error
}

func (r *GormCouponRepository) FindOpenRedemption(ctx context.Context, couponID, cartID uuid.UUID) (*models.CouponRedemption, error) {
	var red models.CouponRedemption
	err := conn(ctx, r.db).
		Where("coupon_id = ? AND cart_id = ? AND order_id IS NULL", couponID, cartID).
		First(&red).Error
	if err != nil {
		return nil, err
	}
	return &red, nil
}

// FindRedemption returns the ledger row for (couponID, cartID) whether or not it is settled.
func (r *GormCouponRepository) FindRedemption(ctx context.Context, couponID, cartID uuid.UUID) (*models.CouponRedemption, error) {
	var red models.CouponRedemption
	if err := conn(ctx, r.db).Where("coupon_id = ? AND cart_id = ?", couponID, cartID).First(&red).Error; err != nil {
		return nil, err
	}
	return &red, nil
}

// LinkRedemption settles the open ledger row for (couponID, cartID) against orderID.
func (r *GormCouponRepository) LinkRedemption(ctx context.Context, couponID, cartID, orderID uuid.UUID) (bool, error) {
	res := conn(ctx, r.db).Model(&models.CouponRedemption{}).
		Where("coupon_id = ? AND cart_id = ? AND order_id IS NULL", couponID, cartID).
		Update("order_id", orderID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
