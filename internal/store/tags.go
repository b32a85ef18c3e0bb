package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webdevcody/youtube-video-suggestions/internal/models"
)

// UpsertTags inserts each name that does not exist yet and returns the
// persisted tags in the order of names. Concurrent callers racing on the
// same name both succeed and see the same row.
func (db *DB) UpsertTags(ctx context.Context, names []string) ([]models.Tag, error) {
	names = normalizeNames(names)
	if len(names) == 0 {
		return []models.Tag{}, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tags (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("store: prepare tag insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), name, now, now); err != nil {
			return nil, fmt.Errorf("store: insert tag: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, name FROM tags WHERE name IN (`+placeholders(len(names))+`)`,
		stringArgs(names)...)
	if err != nil {
		return nil, fmt.Errorf("store: select tags: %w", err)
	}
	byName := make(map[string]models.Tag, len(names))
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan tag: %w", err)
		}
		byName[t.Name] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: select tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit tags: %w", err)
	}

	out := make([]models.Tag, 0, len(names))
	for _, name := range names {
		if t, ok := byName[name]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// AttachTags associates tags with an idea. Existing pairs are left alone.
func (db *DB) AttachTags(ctx context.Context, ideaID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO idea_tags (id, idea_id, tag_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(idea_id, tag_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("store: prepare association insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, tagID := range tagIDs {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), ideaID, tagID, now); err != nil {
			return fmt.Errorf("store: insert association: %w", err)
		}
	}
	return tx.Commit()
}

// IdeaTags returns the tags attached to one idea, sorted by name.
func (db *DB) IdeaTags(ctx context.Context, ideaID string) ([]models.Tag, error) {
	m, err := db.tagsFor(ctx, []string{ideaID})
	if err != nil {
		return nil, err
	}
	if t, ok := m[ideaID]; ok {
		return t, nil
	}
	return []models.Tag{}, nil
}

// ListTagCounts returns every tag in use with its idea count, most used first.
func (db *DB) ListTagCounts(ctx context.Context) ([]models.TagCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT t.name, COUNT(it.id) AS n
		FROM tags t JOIN idea_tags it ON it.tag_id = t.id
		GROUP BY t.id
		ORDER BY n DESC, t.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list tag counts: %w", err)
	}
	defer rows.Close()

	out := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("store: scan tag count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// DeleteTagsByName removes the named tags and their associations and
// returns the names that existed.
func (db *DB) DeleteTagsByName(ctx context.Context, names []string) ([]string, error) {
	names = normalizeNames(names)
	if len(names) == 0 {
		return []string{}, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT name FROM tags WHERE name IN (`+placeholders(len(names))+`) ORDER BY name`,
		stringArgs(names)...)
	if err != nil {
		return nil, fmt.Errorf("store: select tags: %w", err)
	}
	found := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan tag: %w", err)
		}
		found = append(found, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: select tags: %w", err)
	}
	if len(found) == 0 {
		return found, nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tags WHERE name IN (`+placeholders(len(found))+`)`,
		stringArgs(found)...); err != nil {
		return nil, fmt.Errorf("store: delete tags: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit tag delete: %w", err)
	}
	return found, nil
}

func (db *DB) tagsFor(ctx context.Context, ideaIDs []string) (map[string][]models.Tag, error) {
	out := make(map[string][]models.Tag, len(ideaIDs))
	if len(ideaIDs) == 0 {
		return out, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT it.idea_id, t.id, t.name
		FROM idea_tags it JOIN tags t ON t.id = it.tag_id
		WHERE it.idea_id IN (`+placeholders(len(ideaIDs))+`)
		ORDER BY t.name ASC
	`, stringArgs(ideaIDs)...)
	if err != nil {
		return nil, fmt.Errorf("store: idea tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ideaID string
			t      models.Tag
		)
		if err := rows.Scan(&ideaID, &t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("store: scan idea tag: %w", err)
		}
		out[ideaID] = append(out[ideaID], t)
	}
	return out, rows.Err()
}

// normalizeNames trims, lower-cases and de-duplicates tag names, keeping
// first-seen order and dropping empties.
func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
