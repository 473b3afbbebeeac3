package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

func createTestEmbedding(seed float32, dim int) recognition.Embedding {
	e := make(recognition.Embedding, dim)
	for i := range e {
		e[i] = seed + float32(i)*0.01
	}
	return e
}

func openTestGallery(t *testing.T, path string, opts Options) *FileGallery {
	t.Helper()
	g, err := OpenFileGallery(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestOpenFileGallery_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gallery.bin")
	g := openTestGallery(t, path, Options{Dimension: 4})

	assert.Empty(t, g.Names())
	assert.True(t, g.Lookup().Empty())
	assert.Equal(t, uint64(0), g.Lookup().Version())

	_, err := os.Stat(filepath.Dir(path))
	assert.NoError(t, err, "gallery directory should be created")
}

func TestFileGallery_MergeAndReload(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"plain", Options{Dimension: 4}},
		{"zstd", Options{Dimension: 4, Compression: CompressionZstd}},
		{"encrypted", Options{Dimension: 4, EncryptionEnabled: true}},
		{"zstd and encrypted", Options{Dimension: 4, Compression: CompressionZstd, EncryptionEnabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gallery.bin")
			g := openTestGallery(t, path, tt.opts)

			require.NoError(t, g.Merge("alice", createTestEmbedding(1, 4)))
			require.NoError(t, g.Merge("bob", createTestEmbedding(2, 4)))
			require.NoError(t, g.Merge("alice", createTestEmbedding(3, 4)))

			assert.Equal(t, []string{"alice", "bob"}, g.Names())
			assert.Equal(t, uint64(3), g.Lookup().Version())

			reopened := openTestGallery(t, path, tt.opts)
			assert.Equal(t, []string{"alice", "bob"}, reopened.Names())
			assert.Equal(t, uint64(3), reopened.Lookup().Version())

			embs, ok := reopened.Lookup().Lookup("alice")
			require.True(t, ok)
			require.Len(t, embs, 2)
			assert.Equal(t, createTestEmbedding(1, 4), embs[0])
			assert.Equal(t, createTestEmbedding(3, 4), embs[1])
		})
	}
}

func TestFileGallery_EncryptedIsNotPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.bin")
	g := openTestGallery(t, path, Options{EncryptionEnabled: true})
	require.NoError(t, g.Merge("secret-name", createTestEmbedding(1, 4)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-name")
}

func TestFileGallery_CompressionCanBeDisabledLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.bin")
	g := openTestGallery(t, path, Options{Compression: CompressionZstd})
	require.NoError(t, g.Merge("alice", createTestEmbedding(1, 8)))

	plain := openTestGallery(t, path, Options{Compression: CompressionNone})
	assert.Equal(t, []string{"alice"}, plain.Names())
}

func TestFileGallery_EncryptedWithoutKeyIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.bin")
	g := openTestGallery(t, path, Options{EncryptionEnabled: true})
	require.NoError(t, g.Merge("alice", createTestEmbedding(1, 4)))

	_, err := OpenFileGallery(path, Options{})
	assert.ErrorIs(t, err, ErrGalleryCorrupt)
}

func TestFileGallery_WrongKeyIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.bin")
	k1 := [KeySize]byte{1}
	k2 := [KeySize]byte{2}

	g, err := openFileGallery(path, Options{}, &k1)
	require.NoError(t, err)
	defer g.Close()
	require.NoError(t, g.Merge("alice", createTestEmbedding(1, 4)))

	_, err = openFileGallery(path, Options{}, &k2)
	assert.ErrorIs(t, err, ErrGalleryCorrupt)
	assert.ErrorIs(t, err, ErrEncryption)
}

func TestFileGallery_TornAndTamperedFiles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"empty file", func(b []byte) []byte { return nil }},
		{"truncated header", func(b []byte) []byte { return b[:10] }},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-5] }},
		{"trailing garbage", func(b []byte) []byte { return append(b, 0xAA) }},
		{"flipped payload byte", func(b []byte) []byte {
			b[len(b)-1] ^= 0xFF
			return b
		}},
		{"bad magic", func(b []byte) []byte {
			b[0] = 'X'
			return b
		}},
		{"future version", func(b []byte) []byte {
			b[4] = 99
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gallery.bin")
			g := openTestGallery(t, path, Options{Compression: CompressionZstd})
			require.NoError(t, g.Merge("alice", createTestEmbedding(1, 4)))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, tt.mutate(data), 0600))

			_, err = OpenFileGallery(path, Options{Compression: CompressionZstd})
			assert.ErrorIs(t, err, ErrGalleryCorrupt)
		})
	}
}

func TestFileGallery_StructurallyInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  any
		dim  int
	}{
		{"not json", "{{{", 0},
		{"empty name", document{Entries: []recognition.Entry{{Name: " ", Embeddings: []recognition.Embedding{{1, 2}}}}}, 0},
		{"empty embedding set", document{Entries: []recognition.Entry{{Name: "alice"}}}, 0},
		{"duplicate name", document{Entries: []recognition.Entry{
			{Name: "alice", Embeddings: []recognition.Embedding{{1, 2}}},
			{Name: "alice", Embeddings: []recognition.Embedding{{3, 4}}},
		}}, 0},
		{"mixed dimensions", document{Entries: []recognition.Entry{
			{Name: "alice", Embeddings: []recognition.Embedding{{1, 2}}},
			{Name: "bob", Embeddings: []recognition.Embedding{{1, 2, 3}}},
		}}, 0},
		{"wrong configured dimension", document{Entries: []recognition.Entry{
			{Name: "alice", Embeddings: []recognition.Embedding{{1, 2}}},
		}}, 4},
		{"stored dimension disagrees", document{Dimension: 3, Entries: []recognition.Entry{
			{Name: "alice", Embeddings: []recognition.Embedding{{1, 2, 3}}},
		}}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gallery.bin")

			var raw []byte
			if s, ok := tt.doc.(string); ok {
				raw = []byte(s)
			} else {
				var err error
				raw, err = json.Marshal(tt.doc)
				require.NoError(t, err)
			}

			c, err := newCodec(CompressionNone, nil)
			require.NoError(t, err)
			defer c.close()
			data, err := c.encode(raw)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data, 0600))

			_, err = OpenFileGallery(path, Options{Dimension: tt.dim})
			assert.ErrorIs(t, err, ErrGalleryCorrupt)
		})
	}
}

func TestFileGallery_MergeRejectsInvalid(t *testing.T) {
	g := openTestGallery(t, filepath.Join(t.TempDir(), "gallery.bin"), Options{Dimension: 4})

	assert.ErrorIs(t, g.Merge("", createTestEmbedding(1, 4)), ErrInvalidEntry)
	assert.ErrorIs(t, g.Merge("alice", nil), ErrInvalidEntry)
	assert.ErrorIs(t, g.Merge("alice", createTestEmbedding(1, 3)), ErrDimensionMismatch)

	// A bad addition rejects the whole batch.
	err := g.MergeAll([]Addition{
		{Name: "alice", Embedding: createTestEmbedding(1, 4)},
		{Name: "bob", Embedding: createTestEmbedding(1, 5)},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Empty(t, g.Names())
}

func TestFileGallery_InferredDimensionIsEnforced(t *testing.T) {
	g := openTestGallery(t, filepath.Join(t.TempDir(), "gallery.bin"), Options{})
	require.NoError(t, g.Merge("alice", createTestEmbedding(1, 6)))
	assert.ErrorIs(t, g.Merge("bob", createTestEmbedding(1, 7)), ErrDimensionMismatch)
}

func TestFileGallery_PersistFailureLeavesStateUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.bin")
	g := openTestGallery(t, path, Options{Dimension: 4})
	require.NoError(t, g.Merge("alice", createTestEmbedding(1, 4)))
	before := g.Lookup()

	// A non-empty directory at the target path makes the rename fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0700))

	err := g.Merge("bob", createTestEmbedding(2, 4))
	require.ErrorIs(t, err, ErrStorageAccess)

	assert.Same(t, before, g.Lookup())
	assert.Equal(t, []string{"alice"}, g.Names())

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".gallery.bin.*.tmp"))
	assert.Empty(t, leftovers, "temp file should be cleaned up")
}

func TestFileGallery_SnapshotIsStableUntilMerge(t *testing.T) {
	g := openTestGallery(t, filepath.Join(t.TempDir(), "gallery.bin"), Options{Dimension: 4})
	require.NoError(t, g.Merge("alice", createTestEmbedding(1, 4)))

	s1 := g.Lookup()
	assert.Same(t, s1, g.Lookup())

	require.NoError(t, g.Merge("alice", createTestEmbedding(2, 4)))
	s2 := g.Lookup()
	assert.NotSame(t, s1, s2)

	// The old snapshot is not affected by later merges.
	embs, _ := s1.Lookup("alice")
	assert.Len(t, embs, 1)
	embs, _ = s2.Lookup("alice")
	assert.Len(t, embs, 2)
}

func TestFileGallery_MergeOrderIndependent(t *testing.T) {
	a := createTestEmbedding(1, 4)
	b := createTestEmbedding(2, 4)

	g1 := openTestGallery(t, filepath.Join(t.TempDir(), "g1.bin"), Options{Dimension: 4})
	require.NoError(t, g1.Merge("alice", a))
	require.NoError(t, g1.Merge("bob", b))

	g2 := openTestGallery(t, filepath.Join(t.TempDir(), "g2.bin"), Options{Dimension: 4})
	require.NoError(t, g2.Merge("bob", b))
	require.NoError(t, g2.Merge("alice", a))

	assert.Equal(t, g1.Lookup().Entries(), g2.Lookup().Entries())
}

func TestFileGallery_ConcurrentMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gallery.bin")
	g := openTestGallery(t, path, Options{Dimension: 4})

	const workers = 16
	const perWorker = 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Half the workers share a name, half use their own.
				name := "shared"
				if w%2 == 1 {
					name = fmt.Sprintf("person-%02d", w)
				}
				if err := g.Merge(name, createTestEmbedding(float32(w*100+i), 4)); err != nil {
					t.Errorf("merge: %v", err)
				}
			}
		}(w)
	}

	// Readers run alongside writers.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = g.Lookup().Len()
			}
		}()
	}
	wg.Wait()

	check := func(g *FileGallery) {
		snap := g.Lookup()
		assert.Equal(t, workers*perWorker, snap.Len())
		shared, ok := snap.Lookup("shared")
		require.True(t, ok)
		assert.Len(t, shared, workers/2*perWorker)
		assert.Len(t, snap.Names(), 1+workers/2)
	}
	check(g)
	check(openTestGallery(t, path, Options{Dimension: 4}))
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("lz4")
	assert.Error(t, err)
}

func TestSealOpenGallery(t *testing.T) {
	key := [KeySize]byte{7}
	ct, err := seal(&key, []byte("payload"))
	require.NoError(t, err)

	pt, err := open(&key, ct)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(pt))

	_, err = open(&key, ct[:NonceSize-1])
	assert.True(t, errors.Is(err, ErrEncryption))
}
