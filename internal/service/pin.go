package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var pinSpace = big.NewInt(1_000_000)

// generatePickupPIN returns a uniformly random 6-digit code.
func generatePickupPIN() (string, error) {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		return "", fmt.Errorf("generate pickup pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
