// Package ports defines the external collaborators the vault consumes.
// Interfaces live here, on the consumer side, so the vault never depends on
// transport or SDK specifics.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks PriceOracle,AssetCustody

import (
	"context"

	"trustline/internal/ledger"
)

// PriceOracle converts asset amounts into USD cents. Implementations must
// return a coded oracle error when the price is stale or the asset unknown.
type PriceOracle interface {
	QuoteUsd(ctx context.Context, asset string, amount int64) (int64, error)
}

// AssetCustody moves collateral between the subject and the protocol.
type AssetCustody interface {
	TransferIn(ctx context.Context, subject ledger.Subject, asset string, amount int64) error
	TransferOut(ctx context.Context, subject ledger.Subject, asset string, amount int64) error
}
