package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/cjeanneret/photobooth/internal/artifact"
	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/export"
	"github.com/cjeanneret/photobooth/internal/metrics"
)

// ErrNotFound is returned when an artifact is not in the gallery.
var ErrNotFound = errors.New("artifact not in gallery")

const (
	// DefaultPrefix names gallery downloads: photo-<n>-<millis>.jpg.
	DefaultPrefix = "photo"
	// LatestPrefix names the "download latest" file: photo-booth-<millis>.jpg.
	LatestPrefix = "photo-booth"
)

type entry struct {
	art    *artifact.Artifact
	handle export.Handle
}

// Gallery holds the session's artifacts in insertion order. Each
// artifact's JPEG is registered in a BlobStore while it is listed.
type Gallery struct {
	mu      sync.RWMutex
	entries []entry
	blobs   *export.BlobStore
	prefix  string
}

// New returns an empty gallery. A nil store gets a private one; an empty
// prefix falls back to DefaultPrefix.
func New(blobs *export.BlobStore, prefix string) *Gallery {
	if blobs == nil {
		blobs = export.NewBlobStore()
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Gallery{blobs: blobs, prefix: prefix}
}

func (g *Gallery) find(id uuid.UUID) int {
	for i, e := range g.entries {
		if e.art.ID == id {
			return i
		}
	}
	return -1
}

// Add appends a to the gallery. Adding an ID already present is a no-op
// and returns false.
func (g *Gallery) Add(a *artifact.Artifact) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.find(a.ID) >= 0 {
		debug.Verbose("Gallery: %s already present", a.ID)
		return false
	}
	g.entries = append(g.entries, entry{art: a, handle: g.blobs.Put(a.Encoded)})
	metrics.GalleryItems.Set(float64(len(g.entries)))
	debug.Info("Gallery: added %s (%d items)", a.ID, len(g.entries))
	return true
}

// Remove drops the artifact with id and revokes its handle. Removing an
// absent ID is a no-op and returns false.
func (g *Gallery) Remove(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.find(id)
	if i < 0 {
		return false
	}
	g.blobs.Revoke(g.entries[i].handle)
	g.entries = append(g.entries[:i], g.entries[i+1:]...)
	metrics.GalleryItems.Set(float64(len(g.entries)))
	debug.Info("Gallery: removed %s (%d items)", id, len(g.entries))
	return true
}

// Clear removes everything, revoking every handle. It returns how many
// artifacts were dropped.
func (g *Gallery) Clear() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.entries)
	for _, e := range g.entries {
		g.blobs.Revoke(e.handle)
	}
	g.entries = nil
	metrics.GalleryItems.Set(0)
	if n > 0 {
		debug.Info("Gallery: cleared %d items", n)
	}
	return n
}

// List returns the artifacts in insertion order. The slice is a copy.
func (g *Gallery) List() []*artifact.Artifact {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*artifact.Artifact, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.art
	}
	return out
}

// Len returns the number of artifacts.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Get looks an artifact up by ID.
func (g *Gallery) Get(id uuid.UUID) (*artifact.Artifact, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i := g.find(id); i >= 0 {
		return g.entries[i].art, true
	}
	return nil, false
}

// Latest returns the most recently added artifact.
func (g *Gallery) Latest() (*artifact.Artifact, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.entries) == 0 {
		return nil, false
	}
	return g.entries[len(g.entries)-1].art, true
}

// Handle returns the blob handle registered for id.
func (g *Gallery) Handle(id uuid.UUID) (export.Handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if i := g.find(id); i >= 0 {
		return g.entries[i].handle, true
	}
	return "", false
}

// file builds a download. Data is a private copy: writing into it never
// reaches the stored artifact.
func (g *Gallery) file(e entry, prefix string, n int) (export.File, error) {
	data, ok := g.blobs.Open(e.handle)
	if !ok {
		return export.File{}, fmt.Errorf("%w: %s handle revoked", ErrNotFound, e.art.ID)
	}
	return export.File{
		Name:    export.FileName(prefix, n, e.art.CreatedAt),
		Data:    bytes.Clone(data),
		ModTime: e.art.CreatedAt,
	}, nil
}

// Download returns the file for one artifact: <prefix>-<millis>.jpg.
// The returned Data belongs to the caller.
func (g *Gallery) Download(id uuid.UUID) (export.File, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i := g.find(id)
	if i < 0 {
		return export.File{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return g.file(g.entries[i], g.prefix, 0)
}

// DownloadLatest returns the newest artifact as photo-booth-<millis>.jpg.
func (g *Gallery) DownloadLatest() (export.File, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.entries) == 0 {
		return export.File{}, fmt.Errorf("%w: gallery is empty", ErrNotFound)
	}
	return g.file(g.entries[len(g.entries)-1], LatestPrefix, 0)
}

// DownloadAll returns one file per artifact, in insertion order, named
// <prefix>-<n>-<millis>.jpg with n starting at 1.
func (g *Gallery) DownloadAll() ([]export.File, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	files := make([]export.File, 0, len(g.entries))
	for i, e := range g.entries {
		f, err := g.file(e, g.prefix, i+1)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// WriteZip writes DownloadAll as a zip archive.
func (g *Gallery) WriteZip(ctx context.Context, w io.Writer) error {
	files, err := g.DownloadAll()
	if err != nil {
		return err
	}
	debug.Verbose("Gallery: zipping %d files", len(files))
	return export.WriteZip(ctx, w, files)
}
