package snippet

import "time"

// DefaultLanguage is applied when a snippet is created without a language.
const DefaultLanguage = "javascript"

// Image is one attachment of a snippet. Source is either a remote URL or an
// inline data URL; it is carried on the wire as "data_url".
type Image struct {
	ID     string `json:"id"`
	Source string `json:"data_url"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// Snippet is the durable record behind a room. Images keep insertion order.
type Snippet struct {
	Slug      string    `json:"slug"`
	Content   string    `json:"content"`
	Language  string    `json:"language"`
	Images    []Image   `json:"images"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsLive reports whether the snippet has not yet expired at now.
func (s Snippet) IsLive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// HasImage reports whether an image with the given id is attached.
func (s Snippet) HasImage(id string) bool {
	return indexOf(s.Images, id) >= 0
}

// AppendImage returns images with img appended, unless an image with the same
// id is already present, in which case images is returned unchanged.
func AppendImage(images []Image, img Image) []Image {
	if indexOf(images, img.ID) >= 0 {
		return images
	}
	return append(images, img)
}

// RemoveImage returns images without any entry whose id matches.
func RemoveImage(images []Image, id string) []Image {
	out := images[:0:0]
	for _, img := range images {
		if img.ID != id {
			out = append(out, img)
		}
	}
	return out
}

func indexOf(images []Image, id string) int {
	for i, img := range images {
		if img.ID == id {
			return i
		}
	}
	return -1
}
