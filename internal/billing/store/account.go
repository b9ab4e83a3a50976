package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DeleteAccountData removes everything the service owns or may touch for a
// user in one transaction. Quizzes the user created are kept but orphaned.
func (s *UserStore) DeleteAccountData(ctx context.Context, userID string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		steps := []struct {
			name string
			sql  string
		}{
			{"orphan quizzes", `UPDATE quizzes SET created_by = NULL WHERE created_by = $1`},
			{"delete quiz results", `DELETE FROM user_quiz_results WHERE user_id = $1`},
			{"delete quiz likes", `DELETE FROM quiz_likes WHERE user_id = $1`},
			{"delete user", `DELETE FROM users WHERE id = $1`},
		}
		for _, st := range steps {
			if _, err := tx.Exec(ctx, st.sql, userID); err != nil {
				return fmt.Errorf("%s: %w", st.name, err)
			}
		}
		return nil
	})
}

// ResetDailyQuizCounts zeroes quizzes_taken_today for every user whose
// last_reset is not date (YYYY-MM-DD) and returns the number of rows reset.
func (s *UserStore) ResetDailyQuizCounts(ctx context.Context, date string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET quizzes_taken_today = 0, last_reset = $1
		WHERE last_reset IS DISTINCT FROM $1`,
		date,
	)
	if err != nil {
		return 0, fmt.Errorf("reset daily quiz counts: %w", err)
	}
	return tag.RowsAffected(), nil
}
