package store

import (
	"context"
	"fmt"
	"time"
)

// HistoryEntry is one recorded calculation.
type HistoryEntry struct {
	ID         int64
	UserID     int64
	Expression string
	Result     string
	CreatedAt  time.Time
}

// InsertCalculationHistory records a successful calculation.
func (s *Store) InsertCalculationHistory(ctx context.Context, userID int64, expression, result string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calc_history (user_id, expression, result)
		VALUES (?, ?, ?)
	`, userID, expression, result)
	if err != nil {
		return fmt.Errorf("insert history for user %d: %w", userID, err)
	}
	return nil
}

// RecentHistory returns up to limit calculations for a user, newest first.
func (s *Store) RecentHistory(ctx context.Context, userID int64, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, expression, result, created_at
		FROM calc_history WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history for user %d: %w", userID, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Expression, &e.Result, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
