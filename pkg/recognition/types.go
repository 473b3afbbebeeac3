// Package recognition resolves face identities against a gallery snapshot.
// It holds the pure parts of the pipeline: distance functions, the
// nearest-neighbour matcher and the intra-photo deduplicator.
package recognition

import (
	"fmt"
	"sort"
)

// Embedding is a fixed-length face descriptor produced by the detector model.
type Embedding []float32

// Dimension returns the number of components in the embedding.
func (e Embedding) Dimension() int {
	return len(e)
}

// BoundingBox is a face rectangle in pixel coordinates.
// (X0, Y0) is the top-left corner and (X1, Y1) the bottom-right corner.
type BoundingBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the box width, zero for inverted boxes.
func (b BoundingBox) Width() float64 {
	return max(0, b.X1-b.X0)
}

// Height returns the box height, zero for inverted boxes.
func (b BoundingBox) Height() float64 {
	return max(0, b.Y1-b.Y0)
}

// Area returns the box area.
func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

// Clamp restricts the box to an image of the given size.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	w, h := float64(width), float64(height)
	return BoundingBox{
		X0: min(max(0, b.X0), w),
		Y0: min(max(0, b.Y0), h),
		X1: min(max(0, b.X1), w),
		Y1: min(max(0, b.Y1), h),
	}
}

// Observation is a single face reported by the detector for one photo.
type Observation struct {
	Box       BoundingBox `json:"box"`
	Embedding Embedding   `json:"embedding,omitempty"`
	Score     float64     `json:"score,omitempty"`
}

// HasEmbedding reports whether the detector produced an embedding for the face.
func (o Observation) HasEmbedding() bool {
	return len(o.Embedding) > 0
}

// VerdictKind tags a Verdict.
type VerdictKind int

const (
	// Unmatched means no gallery embedding was within the match threshold.
	Unmatched VerdictKind = iota
	// Identified means the nearest gallery embedding was within the threshold.
	Identified
)

func (k VerdictKind) String() string {
	switch k {
	case Identified:
		return "identified"
	case Unmatched:
		return "unmatched"
	default:
		return fmt.Sprintf("VerdictKind(%d)", int(k))
	}
}

// Verdict is the matcher's decision for one observation.
// Distance is the minimum distance seen, or -1 when the gallery was empty.
type Verdict struct {
	Kind     VerdictKind `json:"kind"`
	Name     string      `json:"name,omitempty"`
	Distance float64     `json:"distance"`
}

// IdentifiedAs returns an Identified verdict.
func IdentifiedAs(name string, distance float64) Verdict {
	return Verdict{Kind: Identified, Name: name, Distance: distance}
}

// NoMatch returns an Unmatched verdict.
func NoMatch(distance float64) Verdict {
	return Verdict{Kind: Unmatched, Distance: distance}
}

// IsIdentified reports whether the verdict names a known person.
func (v Verdict) IsIdentified() bool {
	return v.Kind == Identified
}

// Entry is one known person and every embedding recorded for them.
type Entry struct {
	Name       string      `json:"name"`
	Embeddings []Embedding `json:"embeddings"`
}

// Snapshot is an immutable view of the gallery at one version.
// Entries are sorted by name.
type Snapshot struct {
	version uint64
	entries []Entry
	count   int
}

// NewSnapshot builds a snapshot from a name -> embeddings mapping.
// The outer slices are copied; embeddings themselves are shared and must
// not be mutated by callers.
func NewSnapshot(version uint64, gallery map[string][]Embedding) *Snapshot {
	s := &Snapshot{version: version, entries: make([]Entry, 0, len(gallery))}
	for name, embs := range gallery {
		if len(embs) == 0 {
			continue
		}
		cp := make([]Embedding, len(embs))
		copy(cp, embs)
		s.entries = append(s.entries, Entry{Name: name, Embeddings: cp})
		s.count += len(cp)
	}
	sort.Slice(s.entries, func(i, j int) bool {
		return s.entries[i].Name < s.entries[j].Name
	})
	return s
}

// Version returns the gallery version the snapshot was taken at.
func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

// Entries returns the entries sorted by name.
func (s *Snapshot) Entries() []Entry {
	if s == nil {
		return nil
	}
	return s.entries
}

// Names returns the known names in lexicographic order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return []string{}
	}
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the total number of embeddings across all names.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Empty reports whether the snapshot holds no embeddings.
func (s *Snapshot) Empty() bool {
	return s.Len() == 0
}

// Lookup returns the embeddings recorded for name.
func (s *Snapshot) Lookup(name string) ([]Embedding, bool) {
	if s == nil {
		return nil, false
	}
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Name >= name })
	if i < len(s.entries) && s.entries[i].Name == name {
		return s.entries[i].Embeddings, true
	}
	return nil, false
}
