package liquidation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no auction matches the given ID.
	ErrNotFound = errors.New("auction not found")
	// ErrAuctionOpen is returned by Create when the loan already has a
	// non-terminal auction.
	ErrAuctionOpen = errors.New("loan already has an open auction")
)

// Store persists auctions. Implementations must enforce at most one
// non-terminal auction per loan and must run Mutate callbacks atomically
// with respect to the auction they target.
type Store interface {
	Create(ctx context.Context, auction *Auction) error
	Get(ctx context.Context, id uuid.UUID) (*Auction, error)

	// Mutate loads the auction, applies fn to a scratch copy and commits
	// the copy only when fn returns nil.
	Mutate(ctx context.Context, id uuid.UUID, fn func(a *Auction) error) (*Auction, error)
}
