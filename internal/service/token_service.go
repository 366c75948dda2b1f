package service

import (
	"fmt"
	"time"

	"surplus-ledger/internal/core/domain"
	"surplus-ledger/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const appMetadataClaim = "app_metadata"

// JWTTokenService implements ports.TokenService using HS256 JWT.
// Tokens are minted by the hosted auth platform; Generate exists for local
// development and tests.
type JWTTokenService struct {
	secret    []byte
	expiry    time.Duration
	issuer    string
	roleClaim string
}

// NewJWTTokenService creates a new JWT token service.
// An empty issuer disables the issuer check.
func NewJWTTokenService(secret string, expiry time.Duration, issuer, roleClaim string) *JWTTokenService {
	if roleClaim == "" {
		roleClaim = "app_role"
	}
	return &JWTTokenService{
		secret:    []byte(secret),
		expiry:    expiry,
		issuer:    issuer,
		roleClaim: roleClaim,
	}
}

// Generate creates a signed JWT for the given user.
func (s *JWTTokenService) Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := jwt.MapClaims{
		"sub":       userID.String(),
		s.roleClaim: string(role),
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing subject claim")
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}

	role := s.roleFrom(claims)
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid role claim %q", role)
	}

	return &ports.TokenClaims{
		UserID: userID,
		Role:   role,
	}, nil
}

// roleFrom reads the role from the top-level claim, falling back to app_metadata.
func (s *JWTTokenService) roleFrom(claims jwt.MapClaims) domain.Role {
	if r, ok := claims[s.roleClaim].(string); ok {
		return domain.Role(r)
	}
	if meta, ok := claims[appMetadataClaim].(map[string]any); ok {
		if r, ok := meta[s.roleClaim].(string); ok {
			return domain.Role(r)
		}
		if r, ok := meta["role"].(string); ok {
			return domain.Role(r)
		}
	}
	return ""
}
