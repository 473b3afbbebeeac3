package collections

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/MrCodeEU/facefolio/pkg/logging"
)

// LocalStore keeps each collection as a directory under a root.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collections directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the collections directory.
func (s *LocalStore) Root() string {
	return s.root
}

// File implements Store. The copy is written to a temp file and renamed
// into place, so a collection never holds a partial photo.
func (s *LocalStore) File(ctx context.Context, collection, fileName, srcPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(collection); err != nil {
		return err
	}
	if err := ValidateName(fileName); err != nil {
		return fmt.Errorf("file name: %w", err)
	}

	dir := filepath.Join(s.root, collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open photo: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".filing-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", collection, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy photo into %s: %w", collection, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy photo into %s: %w", collection, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, fileName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to file photo into %s: %w", collection, err)
	}

	logging.Debugf("Filed %s into %s", fileName, collection)
	return nil
}

// List implements Store.
func (s *LocalStore) List(ctx context.Context) (map[string][]string, error) {
	result := make(map[string][]string)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || ValidateName(entry.Name()) != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		files, err := os.ReadDir(filepath.Join(s.root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list collection %s: %w", entry.Name(), err)
		}

		names := []string{}
		for _, f := range files {
			if f.IsDir() || ValidateName(f.Name()) != nil {
				continue
			}
			names = append(names, f.Name())
		}
		sort.Strings(names)
		result[entry.Name()] = names
	}
	return result, nil
}
