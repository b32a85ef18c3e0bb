package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddUpvote records userID's upvote on ideaID. Upvoting twice is a no-op.
func (db *DB) AddUpvote(ctx context.Context, userID, ideaID string) error {
	if _, err := db.IdeaOwner(ctx, ideaID); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO upvotes (id, user_id, idea_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, idea_id) DO NOTHING
	`, uuid.NewString(), userID, ideaID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: add upvote: %w", err)
	}
	return nil
}

// RemoveUpvote deletes userID's upvote on ideaID if present.
func (db *DB) RemoveUpvote(ctx context.Context, userID, ideaID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM upvotes WHERE user_id = ? AND idea_id = ?`, userID, ideaID); err != nil {
		return fmt.Errorf("store: remove upvote: %w", err)
	}
	return nil
}

// UserUpvotes returns the ids of the ideas userID has upvoted.
func (db *DB) UserUpvotes(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT idea_id FROM upvotes WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: user upvotes: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
