package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Schema holds the DDL for the ledger tables.
//
//go:embed schema.sql
var Schema string

// PostgresStore persists loans and aggregates in PostgreSQL. Row locks stand
// in for the memory store's per-entry mutexes: every mutator runs inside a
// transaction that takes SELECT ... FOR UPDATE on the rows it touches, loan
// before subject.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateLoan(ctx context.Context, loan *LoanRecord, onAggregate func(*AggregateCreditData)) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO loans (id, subject, principal, repaid_amount, collateral_amount,
			                   collateral_asset, collateral_value, ltv_at_open_bps, apr_bps,
			                   opened_at, closed_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			loan.ID, string(loan.Subject), loan.Principal, loan.RepaidAmount,
			loan.CollateralAmount, loan.CollateralAsset, loan.CollateralValue,
			int64(loan.LtvAtOpen), int64(loan.AprBps), loan.OpenedAt, loan.ClosedAt,
			string(loan.Status))
		if err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		if onAggregate == nil {
			return nil
		}
		agg, err := lockAggregate(ctx, tx, loan.Subject)
		if err != nil {
			return err
		}
		onAggregate(agg)
		return saveAggregate(ctx, tx, agg)
	})
}

func (s *PostgresStore) GetLoan(ctx context.Context, id uuid.UUID) (*LoanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, principal, repaid_amount, collateral_amount,
		       collateral_asset, collateral_value, ltv_at_open_bps, apr_bps,
		       opened_at, closed_at, status
		FROM loans WHERE id = $1`, id)
	return scanLoan(row)
}

func (s *PostgresStore) MutateLoan(ctx context.Context, id uuid.UUID, mutate func(*LoanRecord) error, onAggregate func(*AggregateCreditData)) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, subject, principal, repaid_amount, collateral_amount,
			       collateral_asset, collateral_value, ltv_at_open_bps, apr_bps,
			       opened_at, closed_at, status
			FROM loans WHERE id = $1 FOR UPDATE`, id)
		loan, err := scanLoan(row)
		if err != nil {
			return err
		}
		if err := mutate(loan); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE loans SET repaid_amount = $2, closed_at = $3, status = $4
			WHERE id = $1`,
			loan.ID, loan.RepaidAmount, loan.ClosedAt, string(loan.Status))
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		if onAggregate == nil {
			return nil
		}
		agg, err := lockAggregate(ctx, tx, loan.Subject)
		if err != nil {
			return err
		}
		onAggregate(agg)
		return saveAggregate(ctx, tx, agg)
	})
}

func (s *PostgresStore) GetAggregate(ctx context.Context, subject Subject) (*AggregateCreditData, error) {
	row := s.db.QueryRowContext(ctx, aggregateSelect+` WHERE subject = $1`, string(subject))
	agg, err := scanAggregate(row, subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			out := AggregateCreditData{Subject: subject}
			out.ensureMaps()
			return &out, nil
		}
		return nil, err
	}
	return agg, nil
}

func (s *PostgresStore) MutateAggregate(ctx context.Context, subject Subject, mutate func(*AggregateCreditData) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		agg, err := lockAggregate(ctx, tx, subject)
		if err != nil {
			return err
		}
		if err := mutate(agg); err != nil {
			return err
		}
		return saveAggregate(ctx, tx, agg)
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const aggregateSelect = `
	SELECT subject, total_loans, repaid_loans, liquidated_loans, active_loans,
	       total_collateral_value, total_borrowed_value, max_ltv_borrow_count,
	       collateral_assets, first_seen, kyc_verified, kyc_proof_hash,
	       kyc_expires_at, stake_amount, stake_since, vote_count,
	       proposal_count, last_activity_at, cross_source_scores
	FROM subject_aggregates`

// lockAggregate loads the subject row under FOR UPDATE, inserting the empty
// row first when the subject has never been seen.
func lockAggregate(ctx context.Context, tx *sql.Tx, subject Subject) (*AggregateCreditData, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subject_aggregates (subject) VALUES ($1)
		ON CONFLICT (subject) DO NOTHING`, string(subject))
	if err != nil {
		return nil, fmt.Errorf("ensure aggregate row: %w", err)
	}
	row := tx.QueryRowContext(ctx, aggregateSelect+` WHERE subject = $1 FOR UPDATE`, string(subject))
	return scanAggregate(row, subject)
}

func saveAggregate(ctx context.Context, tx *sql.Tx, agg *AggregateCreditData) error {
	assets, err := json.Marshal(agg.CollateralAssets)
	if err != nil {
		return fmt.Errorf("marshal collateral assets: %w", err)
	}
	scores, err := json.Marshal(agg.CrossSourceScores)
	if err != nil {
		return fmt.Errorf("marshal cross-source scores: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE subject_aggregates SET
			total_loans = $2, repaid_loans = $3, liquidated_loans = $4,
			active_loans = $5, total_collateral_value = $6,
			total_borrowed_value = $7, max_ltv_borrow_count = $8,
			collateral_assets = $9, first_seen = $10, kyc_verified = $11,
			kyc_proof_hash = $12, kyc_expires_at = $13, stake_amount = $14,
			stake_since = $15, vote_count = $16, proposal_count = $17,
			last_activity_at = $18, cross_source_scores = $19
		WHERE subject = $1`,
		string(agg.Subject), int64(agg.TotalLoans), int64(agg.RepaidLoans),
		int64(agg.LiquidatedLoans), int64(agg.ActiveLoans),
		agg.TotalCollateralValue, agg.TotalBorrowedValue,
		int64(agg.MaxLtvBorrowCount), assets, nullTime(agg.FirstSeen),
		agg.KYC.Verified, agg.KYC.ProofHash, nullTime(agg.KYC.ExpiresAt),
		agg.Stake.Amount, nullTime(agg.Stake.Since),
		int64(agg.Governance.VoteCount), int64(agg.Governance.ProposalCount),
		nullTime(agg.Governance.LastActivityAt), scores)
	if err != nil {
		return fmt.Errorf("save aggregate: %w", err)
	}
	return nil
}

func scanLoan(row *sql.Row) (*LoanRecord, error) {
	var (
		loan    LoanRecord
		subject string
		status  string
		ltv     int64
		apr     int64
		closed  sql.NullTime
	)
	err := row.Scan(&loan.ID, &subject, &loan.Principal, &loan.RepaidAmount,
		&loan.CollateralAmount, &loan.CollateralAsset, &loan.CollateralValue,
		&ltv, &apr, &loan.OpenedAt, &closed, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan loan: %w", err)
	}
	loan.Subject = Subject(subject)
	loan.Status = LoanStatus(status)
	loan.LtvAtOpen = uint64(ltv)
	loan.AprBps = uint64(apr)
	if closed.Valid {
		t := closed.Time
		loan.ClosedAt = &t
	}
	return &loan, nil
}

func scanAggregate(row *sql.Row, subject Subject) (*AggregateCreditData, error) {
	var (
		agg                                              AggregateCreditData
		subj                                             string
		total, repaid, liquidated, active, maxLtv        int64
		votes, proposals                                 int64
		assets, scores                                   []byte
		firstSeen, kycExpires, stakeSince, lastActivity  sql.NullTime
	)
	err := row.Scan(&subj, &total, &repaid, &liquidated, &active,
		&agg.TotalCollateralValue, &agg.TotalBorrowedValue, &maxLtv,
		&assets, &firstSeen, &agg.KYC.Verified, &agg.KYC.ProofHash,
		&kycExpires, &agg.Stake.Amount, &stakeSince, &votes,
		&proposals, &lastActivity, &scores)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan aggregate: %w", err)
	}
	agg.Subject = Subject(subj)
	agg.TotalLoans = uint64(total)
	agg.RepaidLoans = uint64(repaid)
	agg.LiquidatedLoans = uint64(liquidated)
	agg.ActiveLoans = uint64(active)
	agg.MaxLtvBorrowCount = uint64(maxLtv)
	agg.Governance.VoteCount = uint64(votes)
	agg.Governance.ProposalCount = uint64(proposals)
	agg.FirstSeen = timeOrZero(firstSeen)
	agg.KYC.ExpiresAt = timeOrZero(kycExpires)
	agg.Stake.Since = timeOrZero(stakeSince)
	agg.Governance.LastActivityAt = timeOrZero(lastActivity)
	agg.ensureMaps()
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &agg.CollateralAssets); err != nil {
			return nil, fmt.Errorf("unmarshal collateral assets: %w", err)
		}
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &agg.CrossSourceScores); err != nil {
			return nil, fmt.Errorf("unmarshal cross-source scores: %w", err)
		}
	}
	return &agg, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeOrZero(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}
