package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SuspendedBasketStatus represents the donation lifecycle of a basket.
type SuspendedBasketStatus string

const (
	SuspendedBasketStatusAvailable SuspendedBasketStatus = "available"
	SuspendedBasketStatusReserved  SuspendedBasketStatus = "reserved"
	SuspendedBasketStatusClaimed   SuspendedBasketStatus = "claimed"
	SuspendedBasketStatusExpired   SuspendedBasketStatus = "expired"
)

// SuspendedBasket is a prepaid basket donated for a beneficiary.
// While available or reserved its Quantity is held in the lot's quantity_reserved.
type SuspendedBasket struct {
	ID                   uuid.UUID             `json:"id"`
	DonorID              uuid.UUID             `json:"donor_id"`
	MerchantID           uuid.UUID             `json:"merchant_id"`
	LotID                uuid.UUID             `json:"lot_id"`
	ReservationID        *uuid.UUID            `json:"reservation_id,omitempty"`
	Quantity             int                   `json:"quantity"`
	Amount               decimal.Decimal       `json:"amount"`
	Status               SuspendedBasketStatus `json:"status"`
	Notes                *string               `json:"notes,omitempty"`
	ReservedBy           *uuid.UUID            `json:"reserved_by,omitempty"`
	ReservedAt           *time.Time            `json:"reserved_at,omitempty"`
	ClaimedBy            *uuid.UUID            `json:"claimed_by,omitempty"`
	ClaimedAt            *time.Time            `json:"claimed_at,omitempty"`
	PaymentTransactionID *uuid.UUID            `json:"payment_transaction_id,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// IsOpen returns true while the basket still holds lot stock.
func (b *SuspendedBasket) IsOpen() bool {
	return b.Status == SuspendedBasketStatusAvailable || b.Status == SuspendedBasketStatusReserved
}

// ClaimableBy returns true if beneficiary may claim the basket now.
// A reserved basket is only claimable by the beneficiary holding it.
func (b *SuspendedBasket) ClaimableBy(beneficiary uuid.UUID) bool {
	switch b.Status {
	case SuspendedBasketStatusAvailable:
		return true
	case SuspendedBasketStatusReserved:
		return b.ReservedBy != nil && *b.ReservedBy == beneficiary
	}
	return false
}
