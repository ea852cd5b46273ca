package api

import (
	"time"

	"github.com/livepaste/livepaste/pkg/snippet"
)

// CreateRequest is the body of POST /api/snippets.
type CreateRequest struct {
	Slug     string          `json:"slug,omitempty"`
	Content  string          `json:"content"`
	Language string          `json:"language,omitempty"`
	Images   []snippet.Image `json:"images,omitempty"`
}

// CreateResponse is returned with 201 from POST /api/snippets.
type CreateResponse struct {
	Slug      string    `json:"slug"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PatchRequest is the body of PATCH /api/snippets/{slug}. Absent fields are
// left unchanged.
type PatchRequest struct {
	Content  *string          `json:"content,omitempty"`
	Language *string          `json:"language,omitempty"`
	Images   *[]snippet.Image `json:"images,omitempty"`
}

// SlugCheck is the payload for GET /api/check/{slug}.
type SlugCheck struct {
	Available bool   `json:"available"`
	Slug      string `json:"slug"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
