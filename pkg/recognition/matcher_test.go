package recognition

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_EmptyGallery(t *testing.T) {
	v := Classify(basis(4), NewSnapshot(0, nil), 0.4)
	assert.Equal(t, Unmatched, v.Kind)
	assert.Empty(t, v.Name)
	assert.Equal(t, -1.0, v.Distance)
}

func TestClassify_NilSnapshot(t *testing.T) {
	v := Classify(basis(4), nil, 0.4)
	assert.False(t, v.IsIdentified())
}

func TestClassify_WithinThreshold(t *testing.T) {
	snap := NewSnapshot(1, map[string][]Embedding{"alice": {basis(4)}})

	v := Classify(rotated(0.1, 4), snap, 0.4)
	require.True(t, v.IsIdentified())
	assert.Equal(t, "alice", v.Name)
	assert.InDelta(t, 0.1, v.Distance, 1e-5)
}

func TestClassify_BeyondThreshold(t *testing.T) {
	snap := NewSnapshot(1, map[string][]Embedding{"alice": {basis(4)}})

	v := Classify(rotated(0.5, 4), snap, 0.4)
	assert.Equal(t, Unmatched, v.Kind)
	assert.InDelta(t, 0.5, v.Distance, 1e-5)
}

func TestClassify_ThresholdIsInclusive(t *testing.T) {
	snap := NewSnapshot(1, map[string][]Embedding{"alice": {basis(4)}})
	v := Classify(basis(4), snap, 0)
	assert.True(t, v.IsIdentified())
}

func TestClassify_NearestAcrossMultipleEmbeddings(t *testing.T) {
	snap := NewSnapshot(1, map[string][]Embedding{
		"alice": {rotated(0.9, 4), rotated(0.3, 4)},
		"bob":   {rotated(0.2, 4)},
	})

	v := Classify(basis(4), snap, 0.6)
	require.True(t, v.IsIdentified())
	assert.Equal(t, "bob", v.Name)
}

func TestClassify_TieBreaksLexicographically(t *testing.T) {
	e := basis(4)
	snap := NewSnapshot(1, map[string][]Embedding{
		"zoe":   {e},
		"bob":   {e},
		"alice": {e},
	})

	for i := 0; i < 20; i++ {
		v := Classify(e, snap, 0.4)
		require.True(t, v.IsIdentified())
		assert.Equal(t, "alice", v.Name)
	}
}

func TestClassify_EmptyQuery(t *testing.T) {
	snap := NewSnapshot(1, map[string][]Embedding{"alice": {basis(4)}})
	v := Classify(nil, snap, 0.4)
	assert.False(t, v.IsIdentified())
}

func TestMatcher_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	gallery := make(map[string][]Embedding)
	for i := 0; i < 10; i++ {
		gallery[fmt.Sprintf("person-%02d", i)] = []Embedding{randomEmbedding(r, 32)}
	}
	snap := NewSnapshot(3, gallery)
	m := NewMatcher(0.6)

	for i := 0; i < 10; i++ {
		q := randomEmbedding(r, 32)
		first := m.Classify(q, snap)
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, m.Classify(q, snap))
		}
	}
}

func TestMatcher_HNSWAgreesWithLinear(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	gallery := make(map[string][]Embedding)
	var all []Embedding
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("person-%02d", i)
		embs := []Embedding{randomEmbedding(r, 64), randomEmbedding(r, 64)}
		gallery[name] = embs
		all = append(all, embs...)
	}
	snap := NewSnapshot(1, gallery)

	linear := NewMatcher(0.3)
	approx := NewMatcher(0.3, WithIndex(IndexHNSW), WithHNSWCandidates(10))

	for _, q := range all {
		want := linear.Classify(q, snap)
		got := approx.Classify(q, snap)
		require.True(t, want.IsIdentified())
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Kind, got.Kind)
	}
}

func TestMatcher_HNSWEmptyGallery(t *testing.T) {
	m := NewMatcher(0.4, WithIndex(IndexHNSW))
	v := m.Classify(basis(8), NewSnapshot(0, nil))
	assert.False(t, v.IsIdentified())
}

func TestMatcher_CachesIndexPerSnapshot(t *testing.T) {
	m := NewMatcher(0.4, WithIndex(IndexHNSW))
	s1 := NewSnapshot(1, map[string][]Embedding{"alice": {basis(4)}})
	s2 := NewSnapshot(2, map[string][]Embedding{"alice": {basis(4)}, "bob": {rotated(0.5, 4)}})

	idx1 := m.index(s1)
	assert.Same(t, idx1, m.index(s1))

	idx2 := m.index(s2)
	assert.NotSame(t, idx1, idx2)
}

func TestParseIndexKind(t *testing.T) {
	k, err := ParseIndexKind("")
	require.NoError(t, err)
	assert.Equal(t, IndexLinear, k)

	k, err = ParseIndexKind("hnsw")
	require.NoError(t, err)
	assert.Equal(t, IndexHNSW, k)

	_, err = ParseIndexKind("faiss")
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	snap := NewSnapshot(5, map[string][]Embedding{
		"carol": {basis(2)},
		"alice": {basis(2), basis(2)},
		"empty": {},
	})

	assert.Equal(t, uint64(5), snap.Version())
	assert.Equal(t, []string{"alice", "carol"}, snap.Names())
	assert.Equal(t, 3, snap.Len())

	embs, ok := snap.Lookup("alice")
	assert.True(t, ok)
	assert.Len(t, embs, 2)

	_, ok = snap.Lookup("empty")
	assert.False(t, ok)

	var nilSnap *Snapshot
	assert.True(t, nilSnap.Empty())
	assert.Equal(t, []string{}, nilSnap.Names())
}
