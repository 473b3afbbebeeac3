package recognition

import (
	"fmt"
	"math/rand"

	"github.com/coder/hnsw"
)

// IndexKind selects the nearest-neighbour strategy used by the Matcher.
type IndexKind string

const (
	// IndexLinear scans every gallery embedding.
	IndexLinear IndexKind = "linear"
	// IndexHNSW searches an HNSW graph and re-ranks the candidates exactly.
	IndexHNSW IndexKind = "hnsw"
)

// ParseIndexKind validates a configured index name.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(s) {
	case IndexLinear, "":
		return IndexLinear, nil
	case IndexHNSW:
		return IndexHNSW, nil
	default:
		return "", fmt.Errorf("unknown index kind %q (must be linear or hnsw)", s)
	}
}

// Candidate is a gallery name at some distance from a query.
type Candidate struct {
	Name     string
	Distance float64
}

// closer reports whether c should replace best.
// Equal distances resolve to the lexicographically smaller name so the
// result never depends on iteration order.
func closer(c, best Candidate) bool {
	if c.Distance != best.Distance {
		return c.Distance < best.Distance
	}
	return c.Name < best.Name
}

// Index finds the gallery name nearest to a query embedding.
type Index interface {
	// Nearest returns the closest candidate, or false when the index is empty.
	Nearest(query Embedding) (Candidate, bool)
}

// LinearIndex scans the whole snapshot. It is exact.
type LinearIndex struct {
	snap *Snapshot
}

// NewLinearIndex creates a linear index over snap.
func NewLinearIndex(snap *Snapshot) *LinearIndex {
	return &LinearIndex{snap: snap}
}

// Nearest implements Index.
func (l *LinearIndex) Nearest(query Embedding) (Candidate, bool) {
	var best Candidate
	found := false
	for _, entry := range l.snap.Entries() {
		for _, emb := range entry.Embeddings {
			c := Candidate{Name: entry.Name, Distance: CosineDistance(query, emb)}
			if !found || closer(c, best) {
				best = c
				found = true
			}
		}
	}
	return best, found
}

// HNSW graph parameters.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 64
	// DefaultHNSWCandidates is how many graph neighbours are re-ranked exactly.
	DefaultHNSWCandidates = 8
)

type hnswRef struct {
	name string
	emb  Embedding
}

// HNSWIndex approximates the nearest neighbour with an HNSW graph and then
// re-ranks the returned candidates with exact cosine distance.
type HNSWIndex struct {
	graph      *hnsw.Graph[int]
	refs       []hnswRef
	candidates int
}

// NewHNSWIndex builds an HNSW graph over snap.
// Embeddings whose dimension differs from the first one seen are skipped.
// The level generator is seeded so a given snapshot always yields the same graph.
func NewHNSWIndex(snap *Snapshot, candidates int) *HNSWIndex {
	if candidates <= 0 {
		candidates = DefaultHNSWCandidates
	}

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance
	g.Rng = rand.New(rand.NewSource(int64(snap.Version()) + 1))

	idx := &HNSWIndex{graph: g, candidates: candidates}
	dim := 0
	for _, entry := range snap.Entries() {
		for _, emb := range entry.Embeddings {
			if len(emb) == 0 {
				continue
			}
			if dim == 0 {
				dim = len(emb)
			}
			if len(emb) != dim {
				continue
			}
			key := len(idx.refs)
			idx.refs = append(idx.refs, hnswRef{name: entry.Name, emb: emb})
			g.Add(hnsw.MakeNode(key, []float32(emb)))
		}
	}
	return idx
}

// Len returns the number of embeddings in the graph.
func (h *HNSWIndex) Len() int {
	return len(h.refs)
}

// Nearest implements Index.
func (h *HNSWIndex) Nearest(query Embedding) (Candidate, bool) {
	if len(h.refs) == 0 || len(query) != len(h.refs[0].emb) {
		return Candidate{}, false
	}

	var best Candidate
	found := false
	for _, n := range h.graph.Search([]float32(query), h.candidates) {
		if n.Key < 0 || n.Key >= len(h.refs) {
			continue
		}
		ref := h.refs[n.Key]
		c := Candidate{Name: ref.name, Distance: CosineDistance(query, ref.emb)}
		if !found || closer(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}
