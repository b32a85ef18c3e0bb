package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webdevcody/youtube-video-suggestions/internal/apperr"
	"github.com/webdevcody/youtube-video-suggestions/internal/models"
)

// NewIdea is the input to CreateIdea. Title and description are stored as given.
type NewIdea struct {
	UserID      string
	Title       string
	Description *string
}

const ideaColumns = `
	i.id, i.user_id, i.title, i.description, i.published, i.youtube_url, i.created_at, i.updated_at,
	(SELECT COUNT(*) FROM upvotes u WHERE u.idea_id = i.id) AS upvote_count,
	EXISTS(SELECT 1 FROM upvotes u WHERE u.idea_id = i.id AND u.user_id = ?) AS upvoted`

// CreateIdea inserts an unpublished idea and returns it with no tags.
func (db *DB) CreateIdea(ctx context.Context, in NewIdea) (*models.Idea, error) {
	now := time.Now().UTC()
	idea := &models.Idea{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		Tags:        []models.Tag{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ideas (id, user_id, title, description, published, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, idea.ID, idea.UserID, idea.Title, idea.Description, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert idea: %w", err)
	}
	return idea, nil
}

// GetIdea returns one idea with its tags and upvote state for viewerID.
func (db *DB) GetIdea(ctx context.Context, id, viewerID string) (*models.Idea, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT`+ideaColumns+` FROM ideas i WHERE i.id = ?`, viewerID, id)
	idea, err := scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: idea %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get idea: %w", err)
	}
	tags, err := db.tagsFor(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if t, ok := tags[id]; ok {
		idea.Tags = t
	}
	return idea, nil
}

// ListIdeas returns ideas matching f, most upvoted first, then by title.
func (db *DB) ListIdeas(ctx context.Context, viewerID string, f models.IdeaFilter) ([]models.Idea, error) {
	var (
		where []string
		args  = []any{viewerID}
	)
	if f.Published != nil {
		where = append(where, "i.published = ?")
		args = append(args, boolToInt(*f.Published))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, `(fold(i.title) LIKE ? ESCAPE '\' OR fold(COALESCE(i.description, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if tags := normalizeNames(f.Tags); len(tags) > 0 {
		where = append(where, `i.id IN (
			SELECT it.idea_id FROM idea_tags it JOIN tags t ON t.id = it.tag_id
			WHERE t.name IN (`+placeholders(len(tags))+`)
			GROUP BY it.idea_id
			HAVING COUNT(DISTINCT t.id) = ?)`)
		args = append(args, stringArgs(tags)...)
		args = append(args, len(tags))
	}

	query := `SELECT` + ideaColumns + ` FROM ideas i`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY upvote_count DESC, i.title COLLATE NOCASE ASC, i.id ASC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list ideas: %w", err)
	}
	defer rows.Close()

	out := []models.Idea{}
	var ids []string
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan idea: %w", err)
		}
		out = append(out, *idea)
		ids = append(ids, idea.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list ideas: %w", err)
	}

	tags, err := db.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if t, ok := tags[out[i].ID]; ok {
			out[i].Tags = t
		}
	}
	return out, nil
}

// CountIdeas counts unpublished and published ideas.
func (db *DB) CountIdeas(ctx context.Context) (models.IdeaCounts, error) {
	var c models.IdeaCounts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN published = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN published = 1 THEN 1 ELSE 0 END), 0)
		FROM ideas
	`).Scan(&c.Fresh, &c.Published)
	if err != nil {
		return c, fmt.Errorf("store: count ideas: %w", err)
	}
	return c, nil
}

// IdeaOwner returns the user id that submitted the idea.
func (db *DB) IdeaOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := db.conn.QueryRowContext(ctx, `SELECT user_id FROM ideas WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: idea %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: idea owner: %w", err)
	}
	return owner, nil
}

// DeleteIdea removes an idea; its tag associations and upvotes cascade.
func (db *DB) DeleteIdea(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM ideas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete idea: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: idea %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// UpdateIdeaStatus sets the published flag. A nil youtubeURL leaves the
// stored URL untouched and an empty one clears it.
func (db *DB) UpdateIdeaStatus(ctx context.Context, id string, published bool, youtubeURL *string) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	switch {
	case youtubeURL == nil:
		res, err = db.conn.ExecContext(ctx,
			`UPDATE ideas SET published = ?, updated_at = ? WHERE id = ?`,
			boolToInt(published), now, id)
	case *youtubeURL == "":
		res, err = db.conn.ExecContext(ctx,
			`UPDATE ideas SET published = ?, youtube_url = NULL, updated_at = ? WHERE id = ?`,
			boolToInt(published), now, id)
	default:
		res, err = db.conn.ExecContext(ctx,
			`UPDATE ideas SET published = ?, youtube_url = ?, updated_at = ? WHERE id = ?`,
			boolToInt(published), *youtubeURL, now, id)
	}
	if err != nil {
		return fmt.Errorf("store: update idea status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: idea %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(r rowScanner) (*models.Idea, error) {
	var (
		idea        models.Idea
		description sql.NullString
		youtubeURL  sql.NullString
		published   int
		upvoted     int
	)
	err := r.Scan(&idea.ID, &idea.UserID, &idea.Title, &description, &published, &youtubeURL,
		&idea.CreatedAt, &idea.UpdatedAt, &idea.UpvoteCount, &upvoted)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		idea.Description = &description.String
	}
	if youtubeURL.Valid {
		idea.YouTubeURL = &youtubeURL.String
	}
	idea.Published = published != 0
	idea.Upvoted = upvoted != 0
	idea.Tags = []models.Tag{}
	return &idea, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
