package repository

import (
	"context"

	"settlement-service/models"

	"gorm.io/gorm"
)

// ConfigRepository reads the operator-maintained pricing and reminder configuration.
type ConfigRepository interface {
	FindPincode(ctx context.Context, code string) (*models.Pincode, error)
	GetCompanySettings(ctx context.Context) (*models.CompanySettings, error)
	ListActiveTaxRates(ctx context.Context) ([]models.TaxRate, error)
	ListActiveShippingRates(ctx context.Context) ([]models.ShippingRate, error)
	ListActiveReminderTiers(ctx context.Context) ([]models.AbandonedCartSetting, error)
}

type GormConfigRepository struct {
	db *gorm.DB
}

func NewGormConfigRepository(db *gorm.DB) ConfigRepository {
	return &GormConfigRepository{db: db}
}

func (r *GormConfigRepository) FindPincode(ctx context.Context, code string) (*models.Pincode, error) {
	var p models.Pincode
	if err := conn(ctx, r.db).Where("code = ? AND is_active = ?", code, true).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetCompanySettings returns the oldest settings row.
func (r *GormConfigRepository) GetCompanySettings(ctx context.Context) (*models.CompanySettings, error) {
	var s models.CompanySettings
	if err := conn(ctx, r.db).Order("created_at ASC").First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormConfigRepository) ListActiveTaxRates(ctx context.Context) ([]models.TaxRate, error) {
	var rates []models.TaxRate
	err := conn(ctx, r.db).Where("is_active = ?", true).Order("created_at ASC").Find(&rates).Error
	return rates, err
}

func (r *GormConfigRepository) ListActiveShippingRates(ctx context.Context) ([]models.ShippingRate, error) {
	var rates []models.ShippingRate
	err := conn(ctx, r.db).Where("is_active = ?", true).Order("created_at ASC").Find(&rates).Error
	return rates, err
}

// ListActiveReminderTiers orders tiers by ascending send delay.
func (r *GormConfigRepository) ListActiveReminderTiers(ctx context.Context) ([]models.AbandonedCartSetting, error) {
	var tiers []models.AbandonedCartSetting
	err := conn(ctx, r.db).
		Where("is_active = ?", true).
		Order("hours_after_email_is_sent ASC").
		Find(&tiers).Error
	return tiers, err
}
