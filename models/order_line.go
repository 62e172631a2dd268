package models

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineKind tags which catalog entity an order line references.
type LineKind int

const (
	LineProduct LineKind = iota + 1
	LineVariant
)

func (k LineKind) String() string {
	switch k {
	case LineProduct:
		return "product"
	case LineVariant:
		return "variant"
	}
	return "unknown"
}

// OrderLine references exactly one product or one variant. The zero value is invalid;
// build lines with NewOrderLine.
type OrderLine struct {
	kind     LineKind
	ref      uuid.UUID
	quantity int
	price    decimal.Decimal
}

// NewOrderLine validates a requested item. index is zero-based and only used in messages.
func NewOrderLine(index int, req OrderItemRequest) (OrderLine, error) {
	hasProduct := req.ProductID != nil && *req.ProductID != uuid.Nil
	hasVariant := req.VariantID != nil && *req.VariantID != uuid.Nil

	switch {
	case !hasProduct && !hasVariant:
		return OrderLine{}, fmt.Errorf("Item %d: Must have either productId or variantId.", index+1)
	case hasProduct && hasVariant:
		return OrderLine{}, fmt.Errorf("Item %d: Cannot have both productId and variantId.", index+1)
	}
	if req.Quantity < 1 {
		return OrderLine{}, fmt.Errorf("Item %d: Quantity must be at least 1.", index+1)
	}
	if req.Price.IsNegative() {
		return OrderLine{}, fmt.Errorf("Item %d: Price cannot be negative.", index+1)
	}

	line := OrderLine{quantity: req.Quantity, price: req.Price}
	if hasProduct {
		line.kind, line.ref = LineProduct, *req.ProductID
	} else {
		line.kind, line.ref = LineVariant, *req.VariantID
	}
	return line, nil
}

func (l OrderLine) Kind() LineKind         { return l.kind }
func (l OrderLine) Ref() uuid.UUID         { return l.ref }
func (l OrderLine) Quantity() int          { return l.quantity }
func (l OrderLine) Price() decimal.Decimal { return l.price }

// Item converts the line into its persisted form.
func (l OrderLine) Item() OrderItem {
	item := OrderItem{Quantity: l.quantity, Price: l.price}
	ref := l.ref
	if l.kind == LineProduct {
		item.ProductID = &ref
	} else {
		item.VariantID = &ref
	}
	return item
}
