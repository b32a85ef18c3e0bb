package ideaservice

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/webdevcody/youtube-video-suggestions/internal/apperr"
)

// CreateInput is a new idea as submitted by a user.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// normalize trims both fields and turns a blank description into nil.
func (in CreateInput) normalize() CreateInput {
	out := CreateInput{Title: strings.TrimSpace(in.Title)}
	if in.Description != nil {
		if d := strings.TrimSpace(*in.Description); d != "" {
			out.Description = &d
		}
	}
	return out
}

// Validate checks field lengths.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Description, validation.RuneLength(0, 500)),
	)
}

// StatusInput is an admin update to an idea's publication state. A nil
// YouTubeURL leaves the link unchanged; an empty one removes it.
type StatusInput struct {
	Published  bool    `json:"published"`
	YouTubeURL *string `json:"youtubeUrl"`
}

// Validate checks that a non-empty link is an absolute http(s) URL.
func (in StatusInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.YouTubeURL, validation.By(httpURL)),
	)
}

func httpURL(value any) error {
	s, _ := value.(*string)
	if s == nil || *s == "" {
		return nil
	}
	u, err := url.Parse(*s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, err.Error())
}
