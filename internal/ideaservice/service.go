// Package ideaservice implements the idea board use cases on top of the store.
package ideaservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/webdevcody/youtube-video-suggestions/internal/apperr"
	"github.com/webdevcody/youtube-video-suggestions/internal/events"
	"github.com/webdevcody/youtube-video-suggestions/internal/metrics"
	"github.com/webdevcody/youtube-video-suggestions/internal/models"
	"github.com/webdevcody/youtube-video-suggestions/internal/moderation"
	"github.com/webdevcody/youtube-video-suggestions/internal/store"
	"github.com/webdevcody/youtube-video-suggestions/internal/tagging"
)

// Caller is the authenticated identity behind a request. The zero value is
// an anonymous caller.
type Caller struct {
	UserID string
	Email  string
	Admin  bool
}

// Anonymous reports whether no user is signed in.
func (c Caller) Anonymous() bool { return c.UserID == "" }

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(e events.Event)
}

// Tagger schedules background tagging.
type Tagger interface {
	Enqueue(job tagging.Job)
}

// Options tunes the service.
type Options struct {
	QuotaCeiling int
	Logger       *slog.Logger
}

// Service coordinates persistence, moderation, events and tagging.
type Service struct {
	db      *store.DB
	bus     Publisher
	tagger  Tagger
	filter  *moderation.Filter
	ceiling int
	logger  *slog.Logger
}

// NewService creates an idea service.
func NewService(db *store.DB, bus Publisher, tagger Tagger, filter *moderation.Filter, opts Options) *Service {
	if filter == nil {
		filter = moderation.NewFilter()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		db:      db,
		bus:     bus,
		tagger:  tagger,
		filter:  filter,
		ceiling: opts.QuotaCeiling,
		logger:  opts.Logger,
	}
}

// CreateIdea validates and stores a new idea, announces it, and schedules
// tagging. It returns before tagging starts; the idea has no tags yet.
func (s *Service) CreateIdea(ctx context.Context, caller Caller, sessionID string, in CreateInput) (*models.Idea, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}

	title := s.filter.Clean(in.Title)
	var description *string
	if in.Description != nil {
		d := s.filter.Clean(*in.Description)
		description = &d
	}

	idea, err := s.db.CreateIdea(ctx, store.NewIdea{UserID: caller.UserID, Title: title, Description: description})
	if err != nil {
		return nil, err
	}
	metrics.IdeasCreated.Inc()
	s.logger.Info("idea created", slog.String("idea_id", idea.ID), slog.String("user_id", caller.UserID))

	s.bus.Publish(events.IdeaCreated(idea.ID, caller.UserID, sessionID))
	s.tagger.Enqueue(tagging.Job{
		IdeaID:      idea.ID,
		UserID:      caller.UserID,
		Title:       title,
		Description: description,
	})
	return idea, nil
}

// GetIdea returns one idea as seen by viewerID.
func (s *Service) GetIdea(ctx context.Context, viewerID, id string) (*models.Idea, error) {
	return s.db.GetIdea(ctx, id, viewerID)
}

// ListIdeas returns the ideas matching f.
func (s *Service) ListIdeas(ctx context.Context, viewerID string, f models.IdeaFilter) ([]models.Idea, error) {
	return s.db.ListIdeas(ctx, viewerID, f)
}

// CountIdeas returns fresh and published counts.
func (s *Service) CountIdeas(ctx context.Context) (models.IdeaCounts, error) {
	return s.db.CountIdeas(ctx)
}

// DeleteIdea removes an idea the caller owns, or any idea for admins.
func (s *Service) DeleteIdea(ctx context.Context, caller Caller, sessionID, id string) error {
	if caller.Anonymous() {
		return apperr.ErrUnauthorized
	}
	owner, err := s.db.IdeaOwner(ctx, id)
	if err != nil {
		return err
	}
	if owner != caller.UserID && !caller.Admin {
		return fmt.Errorf("delete idea %s: %w", id, apperr.ErrForbidden)
	}
	if err := s.db.DeleteIdea(ctx, id); err != nil {
		return err
	}
	s.logger.Info("idea deleted", slog.String("idea_id", id), slog.String("user_id", caller.UserID))
	s.bus.Publish(events.IdeaDeleted(id, caller.UserID, sessionID))
	return nil
}

// UpdateIdeaStatus publishes or unpublishes an idea. Admin only.
func (s *Service) UpdateIdeaStatus(ctx context.Context, caller Caller, id string, in StatusInput) (*models.Idea, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if in.YouTubeURL != nil {
		u := strings.TrimSpace(*in.YouTubeURL)
		in.YouTubeURL = &u
	}
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	if err := s.db.UpdateIdeaStatus(ctx, id, in.Published, in.YouTubeURL); err != nil {
		return nil, err
	}
	return s.db.GetIdea(ctx, id, caller.UserID)
}

// Upvote records the caller's upvote. Repeating it has no effect.
func (s *Service) Upvote(ctx context.Context, caller Caller, id string) (*models.Idea, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	if err := s.db.AddUpvote(ctx, caller.UserID, id); err != nil {
		return nil, err
	}
	return s.db.GetIdea(ctx, id, caller.UserID)
}

// RemoveUpvote withdraws the caller's upvote if any.
func (s *Service) RemoveUpvote(ctx context.Context, caller Caller, id string) (*models.Idea, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	if err := s.db.RemoveUpvote(ctx, caller.UserID, id); err != nil {
		return nil, err
	}
	return s.db.GetIdea(ctx, id, caller.UserID)
}

// ListUpvotes returns the ids of ideas the caller upvoted.
func (s *Service) ListUpvotes(ctx context.Context, caller Caller) ([]string, error) {
	if caller.Anonymous() {
		return nil, apperr.ErrUnauthorized
	}
	return s.db.UserUpvotes(ctx, caller.UserID)
}

// ListTags returns every tag in use with its idea count.
func (s *Service) ListTags(ctx context.Context) ([]models.TagCount, error) {
	return s.db.ListTagCounts(ctx)
}

// DeleteTags removes tags by name. Admin only.
func (s *Service) DeleteTags(ctx context.Context, caller Caller, names []string) (*models.DeletedTags, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	var cleaned []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: tagNames: at least one tag name is required", apperr.ErrValidation)
	}
	deleted, err := s.db.DeleteTagsByName(ctx, cleaned)
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return nil, fmt.Errorf("no matching tags: %w", apperr.ErrNotFound)
	}
	s.logger.Info("tags deleted", slog.Int("count", len(deleted)), slog.String("user_id", caller.UserID))
	return &models.DeletedTags{DeletedTags: deleted, Count: len(deleted)}, nil
}

// QuotaStatus reports tagging oracle usage.
func (s *Service) QuotaStatus(ctx context.Context) (models.QuotaStatus, error) {
	used, err := s.db.QuotaUsage(ctx)
	if err != nil {
		return models.QuotaStatus{}, err
	}
	return models.QuotaStatus{Used: used, Ceiling: s.ceiling, Remaining: max(s.ceiling-used, 0)}, nil
}

// ResetQuota zeroes oracle usage. Admin only.
func (s *Service) ResetQuota(ctx context.Context, caller Caller) (models.QuotaStatus, error) {
	if err := requireAdmin(caller); err != nil {
		return models.QuotaStatus{}, err
	}
	if err := s.db.ResetQuota(ctx); err != nil {
		return models.QuotaStatus{}, err
	}
	s.logger.Info("tagging quota reset", slog.String("user_id", caller.UserID))
	return s.QuotaStatus(ctx)
}

// Ping checks the database.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func requireAdmin(c Caller) error {
	if c.Anonymous() {
		return apperr.ErrUnauthorized
	}
	if !c.Admin {
		return apperr.ErrForbidden
	}
	return nil
}
