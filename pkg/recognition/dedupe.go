package recognition

// DedupeConfig holds the thresholds used to collapse duplicate detections.
type DedupeConfig struct {
	// SameFaceThreshold is the cosine distance at or below which two
	// observations are the same face regardless of geometry.
	SameFaceThreshold float64
	// AmbiguityMaxDistance bounds the inconclusive band: above
	// SameFaceThreshold and at or below this value, heavy box overlap
	// still merges two observations.
	AmbiguityMaxDistance float64
	// IoUThreshold is the overlap a pair must exceed for the geometric fallback.
	IoUThreshold float64
}

// Deduplicator collapses duplicate detections of one physical face within a photo.
type Deduplicator struct {
	cfg DedupeConfig
}

// NewDeduplicator creates a Deduplicator.
func NewDeduplicator(cfg DedupeConfig) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

// Duplicates reports whether a and b are detections of the same face.
// Observations without an embedding are compared by geometry alone.
func (d *Deduplicator) Duplicates(a, b Observation) bool {
	if a.HasEmbedding() && b.HasEmbedding() {
		dist := CosineDistance(a.Embedding, b.Embedding)
		if dist <= d.cfg.SameFaceThreshold {
			return true
		}
		if dist > d.cfg.AmbiguityMaxDistance {
			return false
		}
	}
	return IoU(a.Box, b.Box) > d.cfg.IoUThreshold
}

// Dedupe partitions observations into clusters of duplicates and returns one
// representative per cluster: the observation with the largest box, earliest
// on ties. Representatives keep the order of each cluster's first member.
func (d *Deduplicator) Dedupe(observations []Observation) []Observation {
	n := len(observations)
	if n < 2 {
		out := make([]Observation, n)
		copy(out, observations)
		return out
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d.Duplicates(observations[i], observations[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					// Root at the lower index keeps cluster order stable.
					if ri < rj {
						parent[rj] = ri
					} else {
						parent[ri] = rj
					}
				}
			}
		}
	}

	rep := make(map[int]int, n)
	var roots []int
	for i := 0; i < n; i++ {
		r := find(i)
		cur, ok := rep[r]
		if !ok {
			rep[r] = i
			roots = append(roots, r)
			continue
		}
		if observations[i].Box.Area() > observations[cur].Box.Area() {
			rep[r] = i
		}
	}

	out := make([]Observation, 0, len(roots))
	for _, r := range roots {
		out = append(out, observations[rep[r]])
	}
	return out
}
