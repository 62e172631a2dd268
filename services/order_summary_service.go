package services

import (
	"context"
	"errors"
	"strings"

	"settlement-service/apperrors"
	"settlement-service/models"
	"settlement-service/pricing"
	"settlement-service/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderSummary is the checkout preview for a postal code.
type OrderSummary struct {
	PostalCode     string              `json:"postal_code"`
	State          string              `json:"state"`
	TaxType        string              `json:"tax_type"`
	TaxPercentage  decimal.Decimal     `json:"tax_percentage"`
	TaxDetails     []pricing.TaxDetail `json:"tax_details"`
	ShippingRate   decimal.Decimal     `json:"shipping_rate"`
	IsTaxInclusive bool                `json:"is_tax_inclusive"`
	Breakdown      *pricing.Breakdown  `json:"breakdown,omitempty"`
}

// Quote is the priced order used by settlement.
type Quote struct {
	Pincode        *models.Pincode
	Jurisdiction   pricing.Jurisdiction
	Breakdown      pricing.Breakdown
	IsTaxInclusive bool
}

type PincodeInfo struct {
	Code                  string `json:"code"`
	City                  string `json:"city"`
	State                 string `json:"state"`
	EstimatedDeliveryDays int    `json:"estimated_delivery_days"`
}

// OrderSummaryService resolves tax and shipping for a delivery postal code.
type OrderSummaryService interface {
	ComputeOrderSummary(ctx context.Context, postalCode string, subtotal decimal.Decimal) (*OrderSummary, error)
	Quote(ctx context.Context, postalCode string, subtotal, discount decimal.Decimal) (*Quote, error)
	CheckPincode(ctx context.Context, postalCode string) (*PincodeInfo, error)
}

type orderSummaryServiceImpl struct {
	repo   repository.ConfigRepository
	logger *zap.Logger
}

func NewOrderSummaryService(repo repository.ConfigRepository, logger *zap.Logger) OrderSummaryService {
	return &orderSummaryServiceImpl{repo: repo, logger: logger}
}

func (s *orderSummaryServiceImpl) ComputeOrderSummary(ctx context.Context, postalCode string, subtotal decimal.Decimal) (*OrderSummary, error) {
	pin, cfg, j, err := s.resolve(ctx, postalCode)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListActiveShippingRates(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to load shipping rates", err)
	}
	shipping, err := pricing.ResolveShippingRate(rows, pin.State, j.InterState)
	if err != nil {
		s.logConfigError(err, postalCode)
		return nil, err
	}

	summary := &OrderSummary{
		PostalCode:     pin.Code,
		State:          pin.State,
		TaxType:        j.TaxType,
		TaxPercentage:  j.Rate,
		TaxDetails:     j.Details,
		ShippingRate:   shipping,
		IsTaxInclusive: cfg.IsTaxInclusive,
	}
	if subtotal.IsPositive() {
		b := pricing.Compute(j, cfg.IsTaxInclusive, subtotal, decimal.Zero)
		summary.Breakdown = &b
	}
	return summary, nil
}

func (s *orderSummaryServiceImpl) Quote(ctx context.Context, postalCode string, subtotal, discount decimal.Decimal) (*Quote, error) {
	pin, cfg, j, err := s.resolve(ctx, postalCode)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Pincode:        pin,
		Jurisdiction:   j,
		Breakdown:      pricing.Compute(j, cfg.IsTaxInclusive, subtotal, discount),
		IsTaxInclusive: cfg.IsTaxInclusive,
	}, nil
}

func (s *orderSummaryServiceImpl) CheckPincode(ctx context.Context, postalCode string) (*PincodeInfo, error) {
	pin, err := s.findPincode(ctx, postalCode)
	if err != nil {
		return nil, err
	}
	return &PincodeInfo{
		Code:                  pin.Code,
		City:                  pin.City,
		State:                 pin.State,
		EstimatedDeliveryDays: pin.EstimatedDeliveryDays,
	}, nil
}

// resolve loads a fresh configuration snapshot and classifies the delivery.
func (s *orderSummaryServiceImpl) resolve(ctx context.Context, postalCode string) (*models.Pincode, pricing.TaxConfig, pricing.Jurisdiction, error) {
	pin, err := s.findPincode(ctx, postalCode)
	if err != nil {
		return nil, pricing.TaxConfig{}, pricing.Jurisdiction{}, err
	}

	settings, err := s.repo.GetCompanySettings(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cfgErr := apperrors.Configuration("Company settings not found")
			s.logConfigError(cfgErr, postalCode)
			return nil, pricing.TaxConfig{}, pricing.Jurisdiction{}, cfgErr
		}
		return nil, pricing.TaxConfig{}, pricing.Jurisdiction{}, apperrors.Internal("Failed to load company settings", err)
	}

	rates, err := s.repo.ListActiveTaxRates(ctx)
	if err != nil {
		return nil, pricing.TaxConfig{}, pricing.Jurisdiction{}, apperrors.Internal("Failed to load tax rates", err)
	}

	cfg := pricing.NewTaxConfig(settings, rates)
	j, err := pricing.ResolveJurisdiction(cfg, pin.State)
	if err != nil {
		s.logConfigError(err, postalCode)
		return nil, pricing.TaxConfig{}, pricing.Jurisdiction{}, err
	}
	return pin, cfg, j, nil
}

func (s *orderSummaryServiceImpl) findPincode(ctx context.Context, postalCode string) (*models.Pincode, error) {
	code := strings.TrimSpace(postalCode)
	if code == "" {
		return nil, apperrors.Validation("Postal code is required")
	}
	pin, err := s.repo.FindPincode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Invalid pincode")
		}
		return nil, apperrors.Internal("Failed to look up pincode", err)
	}
	return pin, nil
}

func (s *orderSummaryServiceImpl) logConfigError(err error, postalCode string) {
	if apperrors.IsKind(err, apperrors.KindConfiguration) {
		s.logger.Error("pricing configuration missing", zap.Error(err), zap.String("postal_code", postalCode))
	}
}
