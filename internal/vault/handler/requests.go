package handler

import (
	"strings"

	dErrors "trustline/pkg/domain-errors"
)

// BorrowRequest is the HTTP request body for POST /loans.
type BorrowRequest struct {
	Subject            string `json:"subject"`
	CollateralAmount   int64  `json:"collateral_amount"`
	CollateralAsset    string `json:"collateral_asset"`
	RequestedPrincipal int64  `json:"requested_principal"`
}

// Validate validates and normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *BorrowRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	r.CollateralAsset = strings.ToUpper(strings.TrimSpace(r.CollateralAsset))
	if r.CollateralAsset == "" {
		return dErrors.New(dErrors.CodeValidation, "collateral_asset is required")
	}
	if r.CollateralAmount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "collateral_amount must be positive")
	}
	if r.RequestedPrincipal <= 0 {
		return dErrors.New(dErrors.CodeValidation, "requested_principal must be positive")
	}
	return nil
}

// RepayRequest is the HTTP request body for POST /loans/{loanID}/repayments.
type RepayRequest struct {
	Amount int64 `json:"amount"`
}

// Validate implements the Validatable interface.
func (r *RepayRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}
