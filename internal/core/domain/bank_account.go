package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	IBANMinLength = 15
	IBANMaxLength = 34
)

// MerchantBankAccount is a saved payout destination.
type MerchantBankAccount struct {
	ID          uuid.UUID `json:"id"`
	MerchantID  uuid.UUID `json:"merchant_id"`
	AccountName string    `json:"account_name"`
	IBAN        string    `json:"iban"`
	BIC         *string   `json:"bic,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NormalizeIBAN upper-cases and strips all whitespace.
func NormalizeIBAN(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// ValidIBANLength checks a normalized IBAN against the 15..34 range.
func ValidIBANLength(iban string) bool {
	return len(iban) >= IBANMinLength && len(iban) <= IBANMaxLength
}
