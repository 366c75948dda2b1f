package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error independently of its wire code.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindInvalidState        Kind = "invalid_state"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindRateLimited         Kind = "rate_limited"
	KindInternal            Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"-"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// KindOf returns the kind of err, or KindInternal when err is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ---- Validation (VAL) ----

// Validation returns a VAL_001 error with a caller-supplied message.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Le montant doit être strictement positif", http.StatusBadRequest)
}

func ErrBelowMinimumWithdrawal(minimum string) *AppError {
	return New(KindValidation, "VAL_003",
		fmt.Sprintf("Le montant minimum de retrait est de %s", minimum), http.StatusBadRequest)
}

func ErrRejectionReasonRequired() *AppError {
	return New(KindValidation, "VAL_004", "Un motif de refus est obligatoire", http.StatusBadRequest)
}

func ErrInvalidIBAN() *AppError {
	return New(KindValidation, "VAL_005", "IBAN invalide : il doit contenir entre 15 et 34 caractères", http.StatusBadRequest)
}

// ---- Wallet (WAL) ----

// ErrInsufficientBalance reports the available and requested amounts, already formatted.
func ErrInsufficientBalance(available, requested string) *AppError {
	return New(KindInsufficientBalance, "WAL_001",
		fmt.Sprintf("Solde insuffisant. Disponible : %s, montant demandé : %s", available, requested),
		http.StatusPaymentRequired)
}

// ---- State machine (STA) ----

// InvalidState returns a STA_001 error with a caller-supplied message.
func InvalidState(message string) *AppError {
	return New(KindInvalidState, "STA_001", message, http.StatusUnprocessableEntity)
}

func ErrAlreadyConfirmed() *AppError {
	return New(KindInvalidState, "STA_002", "La réception de cette réservation a déjà été confirmée", http.StatusUnprocessableEntity)
}

func ErrBasketNotAvailable() *AppError {
	return New(KindInvalidState, "STA_003", "Ce panier suspendu n'est plus disponible", http.StatusUnprocessableEntity)
}

// ---- Lookup (NF) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "NF_001", fmt.Sprintf("%s introuvable", entity), http.StatusNotFound)
}

// ---- Concurrency (CON) ----

// Conflict returns a CON_001 error with a caller-supplied message.
func Conflict(message string) *AppError {
	return New(KindConflict, "CON_001", message, http.StatusConflict)
}

func ErrAlreadyClaimed() *AppError {
	return New(KindConflict, "CON_002", "Ce panier suspendu a déjà été récupéré", http.StatusConflict)
}

func ErrRequestInFlight() *AppError {
	return New(KindConflict, "CON_003", "Une requête identique est déjà en cours de traitement", http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(KindUnauthorized, "AUTH_001", "Session invalide ou expirée", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(KindForbidden, "AUTH_002", "Accès refusé", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindRateLimited, "RATE_001", "Trop de requêtes, réessayez plus tard", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Erreur interne de base de données", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_000 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_000", "Erreur interne du serveur", http.StatusInternalServerError, err)
}
