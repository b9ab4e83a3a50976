package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ai-consultation/billing/internal/billing/model"
)

// recordEvent appends the event to the ledger inside tx. It reports false
// when the id is already present. A concurrent insert of the same id blocks on
// the primary key until the other transaction finishes.
func recordEvent(ctx context.Context, tx pgx.Tx, ev model.EventRef, userID string) (bool, error) {
	if ev.ID == "" {
		return false, errors.New("record event: empty event id")
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO stripe_events (event_id, event_type, user_id)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, ev.Type, userID,
	)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EventProcessed reports whether eventID is already in the ledger.
func (s *UserStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stripe_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("event processed: %w", err)
	}
	return exists, nil
}

// GetProcessedEvent returns the ledger entry, or nil if absent.
func (s *UserStore) GetProcessedEvent(ctx context.Context, eventID string) (*model.ProcessedEvent, error) {
	var pe model.ProcessedEvent
	err := s.db.QueryRow(ctx,
		`SELECT event_id, event_type, user_id, processed_at FROM stripe_events WHERE event_id = $1`,
		eventID,
	).Scan(&pe.EventID, &pe.EventType, &pe.UserID, &pe.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get processed event: %w", err)
	}
	return &pe, nil
}
