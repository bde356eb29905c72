package control

import (
	"errors"

	"ore-autominer/internal/claims"
	"ore-autominer/internal/governor"
	"ore-autominer/internal/ledger"
	"ore-autominer/internal/store"
	"ore-autominer/internal/strategy"
	"ore-autominer/internal/wallet"
)

var ErrInvalidRequest = errors.New("invalid_request")

const (
	CodeInvalidRequest         = "invalid_request"
	CodeWalletNotFound         = "wallet_not_found"
	CodeWalletExists           = "wallet_exists"
	CodeSessionNotFound        = "session_not_found"
	CodeInsufficientBalance    = "insufficient_balance"
	CodeDuplicateClaimInFlight = "duplicate_claim_in_flight"
	CodeBudgetExceeded         = "budget_exceeded"
	CodePersistenceFailure     = "persistence_failure"
	CodeInternal               = "internal_error"
)

// Code maps any service error to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, governor.ErrInvalidRequest),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, claims.ErrInvalidClaimType),
		errors.Is(err, wallet.ErrInvalidSecret),
		errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, ledger.ErrAmountPrecision):
		return CodeInvalidRequest
	case errors.Is(err, wallet.ErrWalletNotFound):
		return CodeWalletNotFound
	case errors.Is(err, wallet.ErrWalletExists):
		return CodeWalletExists
	case errors.Is(err, governor.ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, claims.ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, claims.ErrDuplicateClaimInFlight):
		return CodeDuplicateClaimInFlight
	case errors.Is(err, governor.ErrBudgetExceeded):
		return CodeBudgetExceeded
	case errors.Is(err, store.ErrPersistence):
		return CodePersistenceFailure
	default:
		return CodeInternal
	}
}
