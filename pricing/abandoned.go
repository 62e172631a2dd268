package pricing

import (
	"settlement-service/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountedItem struct {
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
}

type UnmatchedItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// AbandonedDiscount is the outcome of matching a cart against its abandonment snapshot.
type AbandonedDiscount struct {
	TotalDiscount   decimal.Decimal  `json:"total_discount"`
	DiscountedItems []DiscountedItem `json:"discounted_items"`
	UnmatchedItems  []UnmatchedItem  `json:"unmatched_items"`
}

// Partial reports whether some lines did not qualify.
func (d AbandonedDiscount) Partial() bool {
	return len(d.UnmatchedItems) > 0
}

// MatchAbandonedItems discounts each current line whose product, variant and quantity equal a
// snapshot row. Each snapshot row is consumed by at most one line.
func MatchAbandonedItems(items []models.CartItem, snapshot []models.AbandonedCartItem) AbandonedDiscount {
	out := AbandonedDiscount{
		TotalDiscount:   decimal.Zero,
		DiscountedItems: []DiscountedItem{},
		UnmatchedItems:  []UnmatchedItem{},
	}
	consumed := make([]bool, len(snapshot))

	for _, item := range items {
		idx := -1
		for i, snap := range snapshot {
			if consumed[i] {
				continue
			}
			if sameRef(item.ProductID, snap.ProductID) && sameRef(item.VariantID, snap.VariantID) && item.Quantity == snap.Quantity {
				idx = i
				break
			}
		}

		if idx < 0 {
			out.UnmatchedItems = append(out.UnmatchedItems, UnmatchedItem{Name: item.DisplayName(), Quantity: item.Quantity})
			continue
		}
		consumed[idx] = true

		pct := snapshot[idx].Discount
		amount := PercentOf(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))), pct)
		out.DiscountedItems = append(out.DiscountedItems, DiscountedItem{
			Name:            item.DisplayName(),
			Quantity:        item.Quantity,
			Price:           item.UnitPrice,
			DiscountPercent: pct,
			DiscountAmount:  amount,
		})
		out.TotalDiscount = out.TotalDiscount.Add(amount)
	}
	return out
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
