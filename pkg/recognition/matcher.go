package recognition

import (
	"sync"

	"github.com/MrCodeEU/facefolio/pkg/logging"
)

// Classify is the reference matcher: an exact scan of snap.
// It returns Identified when the nearest embedding is within threshold.
func Classify(query Embedding, snap *Snapshot, threshold float64) Verdict {
	return classifyWith(NewLinearIndex(snap), query, threshold)
}

func classifyWith(idx Index, query Embedding, threshold float64) Verdict {
	if len(query) == 0 {
		return NoMatch(-1)
	}
	best, ok := idx.Nearest(query)
	if !ok {
		return NoMatch(-1)
	}
	if best.Distance <= threshold {
		return IdentifiedAs(best.Name, best.Distance)
	}
	return NoMatch(best.Distance)
}

// Matcher classifies embeddings against gallery snapshots with a fixed threshold.
// The index for the most recent snapshot is cached, so repeated calls against
// the same snapshot do not rebuild it.
type Matcher struct {
	threshold  float64
	kind       IndexKind
	candidates int

	mu         sync.Mutex
	cachedSnap *Snapshot
	cachedIdx  Index
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithIndex selects the index strategy.
func WithIndex(kind IndexKind) MatcherOption {
	return func(m *Matcher) {
		m.kind = kind
	}
}

// WithHNSWCandidates sets how many HNSW neighbours are re-ranked exactly.
func WithHNSWCandidates(n int) MatcherOption {
	return func(m *Matcher) {
		m.candidates = n
	}
}

// NewMatcher creates a Matcher with the given cosine-distance threshold.
func NewMatcher(threshold float64, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		threshold:  threshold,
		kind:       IndexLinear,
		candidates: DefaultHNSWCandidates,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured match threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Classify returns the verdict for query against snap.
func (m *Matcher) Classify(query Embedding, snap *Snapshot) Verdict {
	return classifyWith(m.index(snap), query, m.threshold)
}

func (m *Matcher) index(snap *Snapshot) Index {
	if m.kind != IndexHNSW {
		return NewLinearIndex(snap)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cachedSnap != snap || m.cachedIdx == nil {
		idx := NewHNSWIndex(snap, m.candidates)
		logging.Component("matcher").Debugf("Built HNSW index over %d embeddings (gallery v%d)", idx.Len(), snap.Version())
		m.cachedSnap = snap
		m.cachedIdx = idx
	}
	return m.cachedIdx
}
