// Package scratch manages temporary files that live only as long as a
// resolution session: the uploaded photo and the crops of faces awaiting
// a label.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrCodeEU/facefolio/pkg/logging"
)

// ErrInvalidRef is returned for references that do not name a scratch file.
var ErrInvalidRef = errors.New("invalid scratch reference")

// ErrNotFound is returned when a referenced scratch file does not exist.
var ErrNotFound = errors.New("scratch file not found")

const (
	photosDir = "photos"
	cropsDir  = "crops"
	cropExt   = ".jpg"
)

// Dir is a scratch directory with separate areas for photos and crops.
type Dir struct {
	root string
}

// New creates the scratch directory layout under root.
func New(root string) (*Dir, error) {
	for _, sub := range []string{photosDir, cropsDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0700); err != nil {
			return nil, fmt.Errorf("failed to create scratch directory: %w", err)
		}
	}
	return &Dir{root: root}, nil
}

// Root returns the scratch root.
func (d *Dir) Root() string {
	return d.root
}

func checkRef(ref string) error {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") || strings.ContainsAny(ref, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}

func (d *Dir) path(sub, ref string) (string, error) {
	if err := checkRef(ref); err != nil {
		return "", err
	}
	return filepath.Join(d.root, sub, ref), nil
}

// photoExt keeps a short, known image extension from the upload name.
func photoExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return ext
	default:
		return ".img"
	}
}

// SavePhoto stores an uploaded photo and returns its reference.
func (d *Dir) SavePhoto(originalName string, data []byte) (string, error) {
	ref := uuid.NewString() + photoExt(originalName)
	p, _ := d.path(photosDir, ref)
	if err := os.WriteFile(p, data, 0600); err != nil {
		return "", fmt.Errorf("failed to save photo: %w", err)
	}
	return ref, nil
}

// PhotoPath returns the path of a stored photo.
func (d *Dir) PhotoPath(ref string) (string, error) {
	return d.existing(photosDir, ref)
}

// SaveCrop stores an encoded JPEG crop and returns its reference.
func (d *Dir) SaveCrop(data []byte) (string, error) {
	ref := uuid.NewString() + cropExt
	p, _ := d.path(cropsDir, ref)
	if err := os.WriteFile(p, data, 0600); err != nil {
		return "", fmt.Errorf("failed to save crop: %w", err)
	}
	return ref, nil
}

// CropPath returns the path of a stored crop.
func (d *Dir) CropPath(ref string) (string, error) {
	return d.existing(cropsDir, ref)
}

func (d *Dir) existing(sub, ref string) (string, error) {
	p, err := d.path(sub, ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", err
	}
	return p, nil
}

// DeletePhoto removes a stored photo. Missing files are not an error.
func (d *Dir) DeletePhoto(ref string) error {
	return d.remove(photosDir, ref)
}

// DeleteCrop removes a stored crop. Missing files are not an error.
func (d *Dir) DeleteCrop(ref string) error {
	return d.remove(cropsDir, ref)
}

func (d *Dir) remove(sub, ref string) error {
	p, err := d.path(sub, ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Prune deletes scratch files last modified before cutoff and returns how
// many were removed.
func (d *Dir) Prune(cutoff time.Time) (int, error) {
	removed := 0
	var errs []error
	for _, sub := range []string{photosDir, cropsDir} {
		dir := filepath.Join(d.root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
					errs = append(errs, err)
					continue
				}
				removed++
			}
		}
	}
	if removed > 0 {
		logging.Debugf("Pruned %d stale scratch file(s)", removed)
	}
	return removed, errors.Join(errs...)
}
