package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationStatus represents the pickup lifecycle of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a hold on lot units by a customer or beneficiary.
// MerchantID is the owner of the reserved lot.
type Reservation struct {
	ID                  uuid.UUID         `json:"id"`
	LotID               uuid.UUID         `json:"lot_id"`
	UserID              uuid.UUID         `json:"user_id"`
	MerchantID          uuid.UUID         `json:"merchant_id"`
	Quantity            int               `json:"quantity"`
	TotalPrice          decimal.Decimal   `json:"total_price"`
	Status              ReservationStatus `json:"status"`
	PickupPIN           string            `json:"pickup_pin,omitempty"`
	CustomerConfirmed   bool              `json:"customer_confirmed"`
	CustomerConfirmedAt *time.Time        `json:"customer_confirmed_at,omitempty"`
	SuspendedBasketID   *uuid.UUID        `json:"suspended_basket_id,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// IsFree returns true for reservations that move no money, such as claimed baskets.
func (r *Reservation) IsFree() bool {
	return !r.TotalPrice.IsPositive()
}
