package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotStatus represents the sale state of a lot.
type LotStatus string

const (
	LotStatusAvailable LotStatus = "available"
	LotStatusReserved  LotStatus = "reserved"
	LotStatusSoldOut   LotStatus = "sold_out"
	LotStatusExpired   LotStatus = "expired"
)

// Lot is a merchant's surplus-food listing.
type Lot struct {
	ID               uuid.UUID       `json:"id"`
	MerchantID       uuid.UUID       `json:"merchant_id"`
	Title            string          `json:"title"`
	QuantityTotal    int             `json:"quantity_total"`
	QuantityReserved int             `json:"quantity_reserved"`
	QuantitySold     int             `json:"quantity_sold"`
	OriginalPrice    decimal.Decimal `json:"original_price"`
	DiscountedPrice  decimal.Decimal `json:"discounted_price"`
	Status           LotStatus       `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AvailableQuantity is what can still be reserved.
func (l *Lot) AvailableQuantity() int {
	return l.QuantityTotal - l.QuantityReserved - l.QuantitySold
}

// CanReserve returns true if the lot is on sale and has quantity units left.
func (l *Lot) CanReserve(quantity int) bool {
	return l.Status == LotStatusAvailable && quantity > 0 && l.AvailableQuantity() >= quantity
}
