package pricing

import (
	"settlement-service/apperrors"
	"settlement-service/models"

	"github.com/shopspring/decimal"
)

// ResolveShippingRate returns the cost for delivering to deliveryState. A state row gives its
// intra- or inter-state rate; without one the first active row's inter-state rate applies.
func ResolveShippingRate(rows []models.ShippingRate, deliveryState string, interState bool) (decimal.Decimal, error) {
	if len(rows) == 0 {
		return decimal.Zero, apperrors.Configuration("No shipping rate configured in the system")
	}

	want := NormalizeState(deliveryState)
	for _, row := range rows {
		if NormalizeState(row.State) != want {
			continue
		}
		if interState {
			return row.InterStateRate, nil
		}
		return row.IntraStateRate, nil
	}
	return rows[0].InterStateRate, nil
}
