// Package storage persists the gallery of known faces.
// The gallery is one durable record holding every name and its embeddings.
// It can be compressed with zstd and encrypted at rest using NaCl secretbox.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

// ErrGalleryCorrupt is returned when the persisted gallery cannot be trusted.
var ErrGalleryCorrupt = errors.New("gallery is corrupt")

// ErrStorageAccess is returned when storage cannot be accessed.
var ErrStorageAccess = errors.New("failed to access storage")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// ErrDimensionMismatch is returned when an embedding has the wrong length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrInvalidEntry is returned when a merge names no one or carries no embedding.
var ErrInvalidEntry = errors.New("invalid gallery entry")

// Addition is one embedding to append to a name.
type Addition struct {
	Name      string
	Embedding recognition.Embedding
}

// document is the serialized gallery.
type document struct {
	Version   uint64              `json:"version"`
	Dimension int                 `json:"dimension"`
	UpdatedAt time.Time           `json:"updated_at"`
	Entries   []recognition.Entry `json:"entries"`
}

// Options configures a FileGallery.
type Options struct {
	// Dimension is the expected embedding length. Zero accepts whatever the
	// first embedding uses and enforces it from then on.
	Dimension         int
	EncryptionEnabled bool
	Compression       Compression
}

// FileGallery is a gallery backed by a single file.
// Lookups share a read lock; merges hold the write lock across
// read-mutate-persist, and the in-memory state only changes once the new
// file is durably in place.
type FileGallery struct {
	path      string
	dimension int
	codec     *codec

	mu      sync.RWMutex
	version uint64
	entries map[string][]recognition.Embedding
	snap    *recognition.Snapshot
}

// OpenFileGallery loads the gallery at path, creating an empty one if the
// file does not exist. It fails with ErrGalleryCorrupt if the file exists
// but is not a valid gallery.
func OpenFileGallery(path string, opts Options) (*FileGallery, error) {
	var key *[KeySize]byte
	if opts.EncryptionEnabled {
		k, err := machineKey(machineSources)
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		key = k
	}
	return openFileGallery(path, opts, key)
}

func openFileGallery(path string, opts Options, key *[KeySize]byte) (*FileGallery, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create gallery directory: %v", ErrStorageAccess, err)
	}

	c, err := newCodec(opts.Compression, key)
	if err != nil {
		return nil, err
	}

	g := &FileGallery{
		path:      path,
		dimension: opts.Dimension,
		codec:     c,
		entries:   make(map[string][]recognition.Embedding),
	}

	if err := g.load(); err != nil {
		c.close()
		return nil, err
	}
	return g, nil
}

// Close releases codec resources.
func (g *FileGallery) Close() error {
	g.codec.close()
	return nil
}

// Path returns the gallery file path.
func (g *FileGallery) Path() string {
	return g.path
}

func (g *FileGallery) load() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Infof("No gallery at %s, starting empty", g.path)
			g.snap = recognition.NewSnapshot(0, nil)
			return nil
		}
		return fmt.Errorf("%w: read gallery: %v", ErrStorageAccess, err)
	}

	raw, err := g.codec.decode(data)
	if err != nil {
		return err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrGalleryCorrupt, err)
	}

	dim, err := validateDocument(doc, g.dimension)
	if err != nil {
		return err
	}
	g.dimension = dim

	for _, e := range doc.Entries {
		g.entries[e.Name] = e.Embeddings
	}
	g.version = doc.Version
	g.snap = recognition.NewSnapshot(g.version, g.entries)

	logging.Infof("Loaded gallery v%d from %s: %d name(s), %d embedding(s)", g.version, g.path, len(g.entries), g.snap.Len())
	return nil
}

// validateDocument checks that every name is non-empty and unique, every
// entry has embeddings, and every embedding has the same dimension.
// It returns the dimension in use.
func validateDocument(doc document, dim int) (int, error) {
	if doc.Dimension != 0 && dim != 0 && doc.Dimension != dim {
		return 0, fmt.Errorf("%w: stored dimension %d, configured %d", ErrGalleryCorrupt, doc.Dimension, dim)
	}
	if dim == 0 {
		dim = doc.Dimension
	}

	seen := make(map[string]bool, len(doc.Entries))
	for i, e := range doc.Entries {
		if strings.TrimSpace(e.Name) == "" {
			return 0, fmt.Errorf("%w: entry %d has an empty name", ErrGalleryCorrupt, i)
		}
		if seen[e.Name] {
			return 0, fmt.Errorf("%w: duplicate entry %q", ErrGalleryCorrupt, e.Name)
		}
		seen[e.Name] = true

		if len(e.Embeddings) == 0 {
			return 0, fmt.Errorf("%w: entry %q has no embeddings", ErrGalleryCorrupt, e.Name)
		}
		for j, emb := range e.Embeddings {
			if dim == 0 {
				dim = len(emb)
			}
			if len(emb) == 0 || len(emb) != dim {
				return 0, fmt.Errorf("%w: entry %q embedding %d has dimension %d, want %d", ErrGalleryCorrupt, e.Name, j, len(emb), dim)
			}
		}
	}
	return dim, nil
}

// Lookup returns a snapshot of the current gallery.
// The snapshot is shared between callers until the next merge.
func (g *FileGallery) Lookup() *recognition.Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snap
}

// Names returns the known names in lexicographic order.
func (g *FileGallery) Names() []string {
	return g.Lookup().Names()
}

// Merge appends embedding to the entry for name, creating it if absent.
func (g *FileGallery) Merge(name string, embedding recognition.Embedding) error {
	return g.MergeAll([]Addition{{Name: name, Embedding: embedding}})
}

// MergeAll applies additions as one unit: either every addition is
// persisted or none is visible.
func (g *FileGallery) MergeAll(additions []Addition) error {
	if len(additions) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dim := g.dimension
	for _, a := range additions {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidEntry)
		}
		if len(a.Embedding) == 0 {
			return fmt.Errorf("%w: %q has no embedding", ErrInvalidEntry, a.Name)
		}
		if dim == 0 {
			dim = len(a.Embedding)
		}
		if len(a.Embedding) != dim {
			return fmt.Errorf("%w: %q has %d components, gallery uses %d", ErrDimensionMismatch, a.Name, len(a.Embedding), dim)
		}
	}

	next := make(map[string][]recognition.Embedding, len(g.entries)+len(additions))
	for name, embs := range g.entries {
		next[name] = embs
	}
	for _, a := range additions {
		emb := make(recognition.Embedding, len(a.Embedding))
		copy(emb, a.Embedding)
		cur := next[a.Name]
		grown := make([]recognition.Embedding, len(cur), len(cur)+1)
		copy(grown, cur)
		next[a.Name] = append(grown, emb)
	}

	version := g.version + 1
	snap := recognition.NewSnapshot(version, next)
	if err := g.persist(version, dim, snap); err != nil {
		return err
	}

	g.entries = next
	g.version = version
	g.dimension = dim
	g.snap = snap

	logging.Debugf("Gallery v%d: merged %d embedding(s)", version, len(additions))
	return nil
}

// persist atomically replaces the gallery file.
func (g *FileGallery) persist(version uint64, dim int, snap *recognition.Snapshot) error {
	doc := document{
		Version:   version,
		Dimension: dim,
		UpdatedAt: time.Now().UTC(),
		Entries:   snap.Entries(),
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal gallery: %w", err)
	}
	data, err := g.codec.encode(raw)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(g.path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// fsyncs it, renames it over path and fsyncs the directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
