package protocol

import "github.com/livepaste/livepaste/pkg/snippet"

// Kind is the wire discriminator carried in the "type" field.
type Kind string

const (
	KindEdit                 Kind = "edit"
	KindImage                Kind = "image"
	KindRemoveImage          Kind = "remove_image"
	KindBroadcastEdit        Kind = "broadcast_edit"
	KindBroadcastImage       Kind = "broadcast_image"
	KindBroadcastRemoveImage Kind = "broadcast_remove_image"
	KindConnected            Kind = "connected"
	KindViewers              Kind = "viewers"
)

// Message is implemented by every protocol message and nothing else.
type Message interface {
	Kind() Kind
	sealed()
}

// Edit replaces the snippet's content and language.
type Edit struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

// Image attaches an image to the snippet.
type Image struct {
	Image snippet.Image `json:"image"`
}

// RemoveImage detaches the image with ID.
type RemoveImage struct {
	ID string `json:"id"`
}

// BroadcastEdit mirrors an accepted Edit to the whole room.
type BroadcastEdit struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

// BroadcastImage mirrors an accepted Image to the whole room.
type BroadcastImage struct {
	Image snippet.Image `json:"image"`
}

// BroadcastRemoveImage mirrors an accepted RemoveImage to the whole room.
type BroadcastRemoveImage struct {
	ID string `json:"id"`
}

// Connected is sent once to a viewer that just joined. Viewers is the number
// of viewers that were present before it.
type Connected struct {
	Slug    string `json:"slug"`
	Viewers int    `json:"viewers"`
}

// Viewers announces the room's current viewer count.
type Viewers struct {
	Count int `json:"count"`
}

func (Edit) Kind() Kind                 { return KindEdit }
func (Image) Kind() Kind                { return KindImage }
func (RemoveImage) Kind() Kind          { return KindRemoveImage }
func (BroadcastEdit) Kind() Kind        { return KindBroadcastEdit }
func (BroadcastImage) Kind() Kind       { return KindBroadcastImage }
func (BroadcastRemoveImage) Kind() Kind { return KindBroadcastRemoveImage }
func (Connected) Kind() Kind            { return KindConnected }
func (Viewers) Kind() Kind              { return KindViewers }

func (Edit) sealed()                 {}
func (Image) sealed()                {}
func (RemoveImage) sealed()          {}
func (BroadcastEdit) sealed()        {}
func (BroadcastImage) sealed()       {}
func (BroadcastRemoveImage) sealed() {}
func (Connected) sealed()            {}
func (Viewers) sealed()              {}

// FromClient reports whether clients are allowed to send kind k.
func (k Kind) FromClient() bool {
	switch k {
	case KindEdit, KindImage, KindRemoveImage:
		return true
	default:
		return false
	}
}
