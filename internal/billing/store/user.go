package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ai-consultation/billing/internal/billing/model"
)

// ErrUserNotFound is returned by mutations whose target users row does not exist.
var ErrUserNotFound = errors.New("user not found")

type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.StripeCustomerID, &u.IsPremium, &u.TicketCount)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id::text, stripe_customer_id, COALESCE(is_premium, false), COALESCE(ticket_count, 0)`

// GetByID returns the user, or nil if no row matches.
func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetPremium overwrites the entitlement flag outside of any provider event.
func (s *UserStore) SetPremium(ctx context.Context, id string, premium bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET is_premium = $2 WHERE id = $1`, id, premium)
	if err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ActivatePremium applies a subscription checkout exactly once per event:
// is_premium becomes true and the provider customer id is linked. It reports
// false when the event was already in the ledger.
func (s *UserStore) ActivatePremium(ctx context.Context, ev model.EventRef, userID, customerID string) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		fresh, err := recordEvent(ctx, tx, ev, userID)
		if err != nil || !fresh {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET is_premium = true,
			    stripe_customer_id = COALESCE(NULLIF($2, ''), stripe_customer_id)
			WHERE id = $1`,
			userID, customerID,
		)
		if err != nil {
			return fmt.Errorf("activate premium: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// CreditTickets adds count to the user's balance exactly once per event. The
// increment happens in the database so concurrent credits cannot lose updates.
// The returned balance is only meaningful when applied is true.
func (s *UserStore) CreditTickets(ctx context.Context, ev model.EventRef, userID string, count int) (applied bool, balance int, err error) {
	if count <= 0 {
		return false, 0, fmt.Errorf("credit tickets: count must be positive, got %d", count)
	}
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		fresh, err := recordEvent(ctx, tx, ev, userID)
		if err != nil || !fresh {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE users
			SET ticket_count = COALESCE(ticket_count, 0) + $2
			WHERE id = $1
			RETURNING ticket_count`,
			userID, count,
		).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("credit tickets: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return applied, balance, nil
}

// RevokePremiumByCustomer clears the entitlement of whichever users are linked
// to customerID, once per event. A customer with no linked user is not an error.
func (s *UserStore) RevokePremiumByCustomer(ctx context.Context, ev model.EventRef, customerID string) (bool, error) {
	var applied bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		fresh, err := recordEvent(ctx, tx, ev, "")
		if err != nil || !fresh {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET is_premium = false WHERE stripe_customer_id = $1`,
			customerID,
		); err != nil {
			return fmt.Errorf("revoke premium: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
