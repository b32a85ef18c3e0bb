package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/webdevcody/youtube-video-suggestions/internal/ideaservice"
	"github.com/webdevcody/youtube-video-suggestions/internal/ratelimit"
)

// RouterConfig wires optional collaborators into the router.
type RouterConfig struct {
	Auth          AuthSettings
	CreateLimiter *ratelimit.KeyedRateLimiter // nil disables create rate limiting
	Stream        http.Handler                // mounted at GET /events/*
}

// NewRouter creates a chi router with all API routes mounted.
// Reads are open to anonymous callers, mutations need a user, and curation
// routes need an admin.
func NewRouter(svc *ideaservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(IdentityMiddleware(cfg.Auth))

	r.Get("/ideas", h.ListIdeas)
	r.Get("/ideas/counts", h.CountIdeas)
	r.Get("/ideas/{id}", h.GetIdea)
	r.Get("/tags", h.ListTags)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		create := http.Handler(http.HandlerFunc(h.CreateIdea))
		if cfg.CreateLimiter != nil {
			create = RateLimitMiddleware(cfg.CreateLimiter)(create)
		}
		r.Method(http.MethodPost, "/ideas", create)
		r.Delete("/ideas/{id}", h.DeleteIdea)
		r.Post("/ideas/{id}/upvote", h.Upvote)
		r.Delete("/ideas/{id}/upvote", h.RemoveUpvote)
		r.Get("/upvotes", h.ListUpvotes)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin)

		r.Put("/ideas/{id}/status", h.UpdateIdeaStatus)
		r.Delete("/tags", h.DeleteTags)
		r.Get("/admin/quota", h.QuotaStatus)
		r.Post("/admin/quota/reset", h.ResetQuota)
	})

	if cfg.Stream != nil {
		r.Get("/events", cfg.Stream.ServeHTTP)
		r.Get("/events/*", cfg.Stream.ServeHTTP)
	}

	return r
}
