// Package models defines the domain types of the idea board.
package models

import "time"

// Idea is a submitted video idea as returned to clients.
type Idea struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Published   bool      `json:"published"`
	YouTubeURL  *string   `json:"youtubeUrl"`
	Tags        []Tag     `json:"tags"`
	UpvoteCount int       `json:"upvoteCount"`
	Upvoted     bool      `json:"upvoted"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tag is a globally shared, lower-cased label.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TagCount is a tag name with the number of ideas carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// IdeaFilter narrows ListIdeas. Zero value lists everything.
type IdeaFilter struct {
	Published *bool
	Tags      []string // every tag must be present
	Query     string   // case-insensitive match on title or description
}

// IdeaCounts splits ideas into not-yet-published and published.
type IdeaCounts struct {
	Fresh     int `json:"fresh"`
	Published int `json:"published"`
}

// QuotaStatus reports tagging oracle usage against its ceiling.
type QuotaStatus struct {
	Used      int `json:"used"`
	Ceiling   int `json:"ceiling"`
	Remaining int `json:"remaining"`
}

// DeletedTags is the result of an admin tag purge.
type DeletedTags struct {
	DeletedTags []string `json:"deletedTags"`
	Count       int      `json:"count"`
}
