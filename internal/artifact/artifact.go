package artifact

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/photobooth/internal/logic/imaging"
)

// Kind distinguishes a single photo from a four-frame strip.
type Kind string

const (
	KindSingle Kind = "single"
	KindStrip  Kind = "strip"
)

// Artifact is a finished capture. It is never modified once built; the
// gallery owns it from Add until Remove or Clear.
type Artifact struct {
	ID        uuid.UUID
	Kind      Kind
	Filter    imaging.Kind
	CreatedAt time.Time
	Frames    int

	// Pixels is the filtered (and for strips, composed) image.
	Pixels imaging.PixelBuffer
	// Encoded is the JPEG export of Pixels.
	Encoded []byte
}

// New stamps a fresh ID and creation time. IDs are time-ordered (UUIDv7)
// so sorting by ID matches capture order.
func New(kind Kind, filter imaging.Kind, frames int, pixels imaging.PixelBuffer, encoded []byte) (*Artifact, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("artifact id: %w", err)
	}
	return &Artifact{
		ID:        id,
		Kind:      kind,
		Filter:    filter,
		CreatedAt: time.Now(),
		Frames:    frames,
		Pixels:    pixels,
		Encoded:   encoded,
	}, nil
}

func (a *Artifact) String() string {
	return fmt.Sprintf("%s %s (%s, %dx%d, %d bytes)",
		a.Kind, a.ID, a.Filter, a.Pixels.Width, a.Pixels.Height, len(a.Encoded))
}
