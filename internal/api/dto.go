package api

import "github.com/webdevcody/youtube-video-suggestions/internal/models"

// CreateIdeaRequest is the request body for submitting an idea.
type CreateIdeaRequest struct {
	Title       string  `json:"title" example:"Smart Garden Sensor" validate:"required"`
	Description *string `json:"description,omitempty" example:"Build a soil moisture sensor with an ESP32"`
}

// UpdateStatusRequest is the request body for publishing or unpublishing an idea.
type UpdateStatusRequest struct {
	Published  *bool   `json:"published" validate:"required"`
	YouTubeURL *string `json:"youtubeUrl,omitempty" example:"https://youtu.be/dQw4w9WgXcQ"`
}

// DeleteTagsRequest is the request body for purging tags.
type DeleteTagsRequest struct {
	TagNames []string `json:"tagNames" validate:"required"`
}

// IdeaListResponse wraps idea listings.
type IdeaListResponse struct {
	Ideas []models.Idea `json:"ideas" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// TagListResponse wraps tag usage counts.
type TagListResponse struct {
	Tags []models.TagCount `json:"tags" validate:"required"`
}

// UpvoteListResponse lists the ideas the caller upvoted.
type UpvoteListResponse struct {
	IdeaIDs []string `json:"ideaIds" validate:"required"`
}
