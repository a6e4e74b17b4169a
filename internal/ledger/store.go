package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores for unknown loans. Unseen subjects are
// not an error: GetAggregate returns a zero-valued aggregate instead.
var ErrNotFound = errors.New("ledger: not found")

// Store abstracts loan and aggregate persistence. Implementations must
// serialize mutations per loan and per subject while leaving unrelated
// entries free to proceed concurrently; there is no global write lock.
//
// The callback-based mutators are the serialization point: the callbacks run
// with the entry exclusively held, and their changes either all become
// visible or none do.
type Store interface {
	// CreateLoan stores a new loan and applies onAggregate to the subject's
	// aggregate as a single atomic unit.
	CreateLoan(ctx context.Context, loan *LoanRecord, onAggregate func(*AggregateCreditData)) error

	// GetLoan returns a copy of the loan or ErrNotFound.
	GetLoan(ctx context.Context, id uuid.UUID) (*LoanRecord, error)

	// MutateLoan runs mutate with the loan held under its lock. When mutate
	// returns nil, onAggregate (if non-nil) runs under the subject lock and
	// both changes commit together; any error discards everything. Lock
	// order is always loan before subject.
	MutateLoan(ctx context.Context, id uuid.UUID, mutate func(*LoanRecord) error, onAggregate func(*AggregateCreditData)) error

	// GetAggregate returns a copy of the subject's aggregate, zero-valued
	// for subjects never seen.
	GetAggregate(ctx context.Context, subject Subject) (*AggregateCreditData, error)

	// MutateAggregate runs mutate with the aggregate held under the subject
	// lock, creating the aggregate on first touch.
	MutateAggregate(ctx context.Context, subject Subject, mutate func(*AggregateCreditData) error) error
}
