package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog stores the outcome of a retried money operation.
type IdempotencyLog struct {
	Key           string    `json:"key"` // Format: "user_id:operation:client_key"
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildIdempotencyKey scopes a client-supplied key to a user and an operation.
func BuildIdempotencyKey(userID uuid.UUID, operation, clientKey string) string {
	return userID.String() + ":" + operation + ":" + clientKey
}
