package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/webdevcody/youtube-video-suggestions/internal/ideaservice"
	"github.com/webdevcody/youtube-video-suggestions/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *ideaservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *ideaservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListIdeas handles GET /api/ideas.
//
//	@Summary		List ideas, most upvoted first
//	@Tags			ideas
//	@Produce		json
//	@Param			published	query		bool	false	"Only published (true) or fresh (false) ideas"
//	@Param			tag			query		[]string	false	"Require every given tag"	collectionFormat(multi)
//	@Param			q			query		string	false	"Case-insensitive title/description search"
//	@Success		200			{object}	IdeaListResponse
//	@Failure		400			{object}	errResponse
//	@Router			/ideas [get]
func (h *Handler) ListIdeas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f models.IdeaFilter
	if raw := q.Get("published"); raw != "" {
		published, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("published must be true or false"))
			return
		}
		f.Published = &published
	}
	for _, tag := range q["tag"] {
		for _, t := range strings.Split(tag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	f.Query = q.Get("q")

	ideas, err := h.svc.ListIdeas(r.Context(), CallerFrom(r.Context()).UserID, f)
	if err != nil {
		writeError(w, r, "list ideas", err)
		return
	}
	writeJSON(w, http.StatusOK, IdeaListResponse{Ideas: ideas, Total: len(ideas)})
}

// CountIdeas handles GET /api/ideas/counts.
//
//	@Summary		Count fresh and published ideas
//	@Tags			ideas
//	@Produce		json
//	@Success		200	{object}	models.IdeaCounts
//	@Router			/ideas/counts [get]
func (h *Handler) CountIdeas(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.CountIdeas(r.Context())
	if err != nil {
		writeError(w, r, "count ideas", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// GetIdea handles GET /api/ideas/{id}.
//
//	@Summary		Get a single idea with tags and upvotes
//	@Tags			ideas
//	@Produce		json
//	@Param			id	path		string	true	"Idea ID"
//	@Success		200	{object}	models.Idea
//	@Failure		404	{object}	errResponse
//	@Router			/ideas/{id} [get]
func (h *Handler) GetIdea(w http.ResponseWriter, r *http.Request) {
	idea, err := h.svc.GetIdea(r.Context(), CallerFrom(r.Context()).UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get idea", err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// CreateIdea handles POST /api/ideas.
//
//	@Summary		Submit a new idea; tags are generated in the background
//	@Tags			ideas
//	@Accept			json
//	@Produce		json
//	@Param			X-Session-ID	header		string				false	"Client session id echoed in the idea-created event"
//	@Param			body			body		CreateIdeaRequest	true	"Idea to create"
//	@Success		201				{object}	models.Idea
//	@Failure		400				{object}	errResponse
//	@Failure		401				{object}	errResponse
//	@Failure		429				{object}	errResponse
//	@Router			/ideas [post]
func (h *Handler) CreateIdea(w http.ResponseWriter, r *http.Request) {
	var req CreateIdeaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	idea, err := h.svc.CreateIdea(r.Context(), CallerFrom(r.Context()), sessionID(r),
		ideaservice.CreateInput{Title: req.Title, Description: req.Description})
	if err != nil {
		writeError(w, r, "create idea", err)
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

// DeleteIdea handles DELETE /api/ideas/{id}.
//
//	@Summary		Delete an idea (owner or admin)
//	@Tags			ideas
//	@Param			id				path	string	true	"Idea ID"
//	@Param			X-Session-ID	header	string	false	"Client session id echoed in the idea-deleted event"
//	@Success		204				"Idea deleted"
//	@Failure		403				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Router			/ideas/{id} [delete]
func (h *Handler) DeleteIdea(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteIdea(r.Context(), CallerFrom(r.Context()), sessionID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete idea", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateIdeaStatus handles PUT /api/ideas/{id}/status.
//
//	@Summary		Publish or unpublish an idea (admin)
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Idea ID"
//	@Param			body	body		UpdateStatusRequest	true	"New status"
//	@Success		200		{object}	models.Idea
//	@Failure		400		{object}	errResponse
//	@Failure		403		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/ideas/{id}/status [put]
func (h *Handler) UpdateIdeaStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Published == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("published is required"))
		return
	}
	idea, err := h.svc.UpdateIdeaStatus(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"),
		ideaservice.StatusInput{Published: *req.Published, YouTubeURL: req.YouTubeURL})
	if err != nil {
		writeError(w, r, "update idea status", err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// Upvote handles POST /api/ideas/{id}/upvote.
//
//	@Summary		Upvote an idea (idempotent)
//	@Tags			upvotes
//	@Produce		json
//	@Param			id	path		string	true	"Idea ID"
//	@Success		200	{object}	models.Idea
//	@Failure		404	{object}	errResponse
//	@Router			/ideas/{id}/upvote [post]
func (h *Handler) Upvote(w http.ResponseWriter, r *http.Request) {
	idea, err := h.svc.Upvote(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "upvote", err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// RemoveUpvote handles DELETE /api/ideas/{id}/upvote.
//
//	@Summary		Withdraw an upvote (idempotent)
//	@Tags			upvotes
//	@Produce		json
//	@Param			id	path		string	true	"Idea ID"
//	@Success		200	{object}	models.Idea
//	@Failure		404	{object}	errResponse
//	@Router			/ideas/{id}/upvote [delete]
func (h *Handler) RemoveUpvote(w http.ResponseWriter, r *http.Request) {
	idea, err := h.svc.RemoveUpvote(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "remove upvote", err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// ListUpvotes handles GET /api/upvotes.
//
//	@Summary		List the ideas the caller upvoted
//	@Tags			upvotes
//	@Produce		json
//	@Success		200	{object}	UpvoteListResponse
//	@Router			/upvotes [get]
func (h *Handler) ListUpvotes(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ListUpvotes(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "list upvotes", err)
		return
	}
	writeJSON(w, http.StatusOK, UpvoteListResponse{IdeaIDs: ids})
}

// ListTags handles GET /api/tags.
//
//	@Summary		List tags in use with idea counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagListResponse
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.ListTags(r.Context())
	if err != nil {
		writeError(w, r, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// DeleteTags handles DELETE /api/tags.
//
//	@Summary		Delete tags by name (admin)
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DeleteTagsRequest	true	"Tag names"
//	@Success		200		{object}	models.DeletedTags
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/tags [delete]
func (h *Handler) DeleteTags(w http.ResponseWriter, r *http.Request) {
	var req DeleteTagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.DeleteTags(r.Context(), CallerFrom(r.Context()), req.TagNames)
	if err != nil {
		writeError(w, r, "delete tags", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// QuotaStatus handles GET /api/admin/quota.
//
//	@Summary		Tagging oracle usage against its ceiling (admin)
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	models.QuotaStatus
//	@Router			/admin/quota [get]
func (h *Handler) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.QuotaStatus(r.Context())
	if err != nil {
		writeError(w, r, "quota status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ResetQuota handles POST /api/admin/quota/reset.
//
//	@Summary		Reset tagging oracle usage to zero (admin)
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	models.QuotaStatus
//	@Router			/admin/quota/reset [post]
func (h *Handler) ResetQuota(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ResetQuota(r.Context(), CallerFrom(r.Context()))
	if err != nil {
		writeError(w, r, "reset quota", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
