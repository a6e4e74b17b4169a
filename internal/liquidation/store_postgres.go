package liquidation

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trustline/internal/ledger"
)

// Schema holds the DDL for the auctions table.
//
//go:embed schema.sql
var Schema string

// PostgresStore persists auctions in PostgreSQL. The partial unique index on
// (loan_id) WHERE status = 'pending' enforces the one-open-auction-per-loan
// rule at the database level; Mutate takes SELECT ... FOR UPDATE so callbacks
// observe a stable row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed auction store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, auction *Auction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auctions (id, loan_id, subject, started_at, grace_end_at,
		                      max_discount_bps, ramp_seconds, status, closed_at,
		                      final_discount_bps, payout, covered, surplus)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		auction.ID, auction.LoanID, string(auction.Subject), auction.StartedAt,
		auction.GraceEndAt, int64(auction.MaxDiscountBps),
		int64(auction.RampDuration/time.Second), string(auction.Status),
		auction.ClosedAt, int64(auction.FinalDiscountBps), auction.Payout,
		auction.Covered, auction.Surplus)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAuctionOpen
		}
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Auction, error) {
	row := s.db.QueryRowContext(ctx, auctionSelect+` WHERE id = $1`, id)
	return scanAuction(row)
}

func (s *PostgresStore) Mutate(ctx context.Context, id uuid.UUID, fn func(a *Auction) error) (*Auction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	auction, err := s.mutateInTx(ctx, tx, id, fn)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return auction, nil
}

func (s *PostgresStore) mutateInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, fn func(a *Auction) error) (*Auction, error) {
	row := tx.QueryRowContext(ctx, auctionSelect+` WHERE id = $1 FOR UPDATE`, id)
	auction, err := scanAuction(row)
	if err != nil {
		return nil, err
	}
	if err := fn(auction); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE auctions SET status = $2, closed_at = $3, final_discount_bps = $4,
		                    payout = $5, covered = $6, surplus = $7
		WHERE id = $1`,
		auction.ID, string(auction.Status), auction.ClosedAt,
		int64(auction.FinalDiscountBps), auction.Payout, auction.Covered,
		auction.Surplus)
	if err != nil {
		return nil, fmt.Errorf("update auction: %w", err)
	}
	return auction, nil
}

const auctionSelect = `
	SELECT id, loan_id, subject, started_at, grace_end_at, max_discount_bps,
	       ramp_seconds, status, closed_at, final_discount_bps, payout,
	       covered, surplus
	FROM auctions`

func scanAuction(row *sql.Row) (*Auction, error) {
	var (
		auction     Auction
		subject     string
		status      string
		closed      sql.NullTime
		maxDiscount int64
		rampSeconds int64
		discount    int64
	)
	err := row.Scan(&auction.ID, &auction.LoanID, &subject, &auction.StartedAt,
		&auction.GraceEndAt, &maxDiscount, &rampSeconds, &status, &closed,
		&discount, &auction.Payout, &auction.Covered, &auction.Surplus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan auction: %w", err)
	}
	auction.Subject = ledger.Subject(subject)
	auction.Status = AuctionStatus(status)
	auction.MaxDiscountBps = uint64(maxDiscount)
	auction.RampDuration = time.Duration(rampSeconds) * time.Second
	auction.FinalDiscountBps = uint64(discount)
	if closed.Valid {
		t := closed.Time
		auction.ClosedAt = &t
	}
	return &auction, nil
}
