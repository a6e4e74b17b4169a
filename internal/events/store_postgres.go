package events

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"

	"trustline/internal/ledger"
)

// Schema holds the DDL for the event log table.
//
//go:embed schema.sql
var Schema string

// PostgresStore persists lifecycle events to an append-only table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events (event_id, event_type, subject, loan_id, auction_id, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, string(event.Type), string(event.Subject),
		nullUUID(event.LoanID), nullUUID(event.AuctionID),
		event.Amount, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_type, subject, loan_id, auction_id, amount, occurred_at
		FROM lifecycle_events
		WHERE subject = $1
		ORDER BY id`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                 Event
			subj              string
			loanID, auctionID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Type, &subj, &loanID, &auctionID, &e.Amount, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Subject = ledger.Subject(subj)
		if loanID.Valid {
			e.LoanID, _ = uuid.Parse(loanID.String)
		}
		if auctionID.Valid {
			e.AuctionID, _ = uuid.Parse(auctionID.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
