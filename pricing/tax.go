// Package pricing resolves tax jurisdiction, order totals and shipping cost from an
// explicit configuration snapshot. Nothing in this package performs I/O.
package pricing

import (
	"strings"

	"settlement-service/apperrors"
	"settlement-service/models"

	"github.com/shopspring/decimal"
)

const (
	TaxTypeIGST     = "IGST"
	TaxTypeCGSTSGST = "CGST+SGST"

	moneyPlaces = 2
)

var hundred = decimal.NewFromInt(100)

// TaxRate is one named active rate, e.g. CGST 9%.
type TaxRate struct {
	Name       string
	Percentage decimal.Decimal
}

// TaxConfig is the merchant configuration needed to price one order.
type TaxConfig struct {
	HomeState      string
	IsTaxInclusive bool
	Rates          []TaxRate
}

// NewTaxConfig builds a snapshot from the stored settings and active rates.
func NewTaxConfig(settings *models.CompanySettings, rates []models.TaxRate) TaxConfig {
	cfg := TaxConfig{
		HomeState:      settings.CompanyState,
		IsTaxInclusive: settings.IsTaxInclusive,
		Rates:          make([]TaxRate, 0, len(rates)),
	}
	for _, r := range rates {
		cfg.Rates = append(cfg.Rates, TaxRate{Name: r.Name, Percentage: r.Percentage})
	}
	return cfg
}

func (c TaxConfig) rate(name string) (TaxRate, bool) {
	for _, r := range c.Rates {
		if strings.EqualFold(strings.TrimSpace(r.Name), name) {
			return r, true
		}
	}
	return TaxRate{}, false
}

type TaxDetail struct {
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Jurisdiction is the resolved tax classification of a delivery.
type Jurisdiction struct {
	TaxType    string          `json:"tax_type"`
	Rate       decimal.Decimal `json:"tax_percentage"`
	Details    []TaxDetail     `json:"tax_details"`
	InterState bool            `json:"inter_state"`
}

// NormalizeState lower-cases a state name and collapses its whitespace.
func NormalizeState(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// IsInterState reports whether a delivery crosses the merchant's state border.
func IsInterState(deliveryState, homeState string) bool {
	return NormalizeState(deliveryState) != NormalizeState(homeState)
}

// ResolveJurisdiction picks IGST for inter-state deliveries and CGST+SGST otherwise.
func ResolveJurisdiction(cfg TaxConfig, deliveryState string) (Jurisdiction, error) {
	if IsInterState(deliveryState, cfg.HomeState) {
		igst, ok := cfg.rate(models.TaxIGST)
		if !ok {
			return Jurisdiction{}, apperrors.Configuration("IGST tax rate not configured")
		}
		return Jurisdiction{
			TaxType:    TaxTypeIGST,
			Rate:       igst.Percentage,
			Details:    []TaxDetail{{Name: igst.Name, Percentage: igst.Percentage}},
			InterState: true,
		}, nil
	}

	cgst, okC := cfg.rate(models.TaxCGST)
	sgst, okS := cfg.rate(models.TaxSGST)
	if !okC || !okS {
		return Jurisdiction{}, apperrors.Configuration("CGST/SGST tax rates not configured")
	}
	return Jurisdiction{
		TaxType: TaxTypeCGSTSGST,
		Rate:    cgst.Percentage.Add(sgst.Percentage),
		Details: []TaxDetail{
			{Name: cgst.Name, Percentage: cgst.Percentage},
			{Name: sgst.Name, Percentage: sgst.Percentage},
		},
	}, nil
}

// Breakdown is the priced order. Subtotal is the pre-tax base.
type Breakdown struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	TotalBeforeDiscount decimal.Decimal `json:"total_before_discount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	FinalAmount         decimal.Decimal `json:"final_amount"`
	TaxType             string          `json:"tax_type"`
	AppliedTaxRate      decimal.Decimal `json:"applied_tax_rate"`
	IsTaxInclusive      bool            `json:"is_tax_inclusive"`
}

// RoundMoney rounds half away from zero to two places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// Compute prices amount under the jurisdiction's rate. For exclusive pricing amount is the
// pre-tax base; for inclusive pricing it already contains tax and the base is derived.
func Compute(j Jurisdiction, inclusive bool, amount, discount decimal.Decimal) Breakdown {
	amount = RoundMoney(amount)

	b := Breakdown{
		TaxType:        j.TaxType,
		AppliedTaxRate: j.Rate,
		IsTaxInclusive: inclusive,
	}
	if inclusive {
		divisor := decimal.NewFromInt(1).Add(j.Rate.Div(hundred))
		b.Subtotal = RoundMoney(amount.Div(divisor))
		b.TaxAmount = amount.Sub(b.Subtotal)
		b.TotalBeforeDiscount = amount
	} else {
		b.Subtotal = amount
		b.TaxAmount = RoundMoney(amount.Mul(j.Rate).Div(hundred))
		b.TotalBeforeDiscount = amount.Add(b.TaxAmount)
	}

	b.DiscountAmount = RoundMoney(decimal.Max(discount, decimal.Zero))
	b.FinalAmount = FinalAmount(b.TotalBeforeDiscount, b.DiscountAmount)
	return b
}

// FinalAmount is max(total - discount, 0).
func FinalAmount(total, discount decimal.Decimal) decimal.Decimal {
	return decimal.Max(total.Sub(discount), decimal.Zero)
}

// PercentOf returns pct percent of amount, rounded.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}
