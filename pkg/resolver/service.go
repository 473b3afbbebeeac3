// Package resolver runs the face identity pipeline: it resolves the faces
// in an uploaded photo against the gallery, holds unresolved faces in a
// session, and on finalize learns the confirmed names and files the photo.
package resolver

import (
	"context"

	"github.com/MrCodeEU/facefolio/pkg/collections"
	"github.com/MrCodeEU/facefolio/pkg/detection"
	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/media"
	"github.com/MrCodeEU/facefolio/pkg/recognition"
	"github.com/MrCodeEU/facefolio/pkg/scratch"
	"github.com/MrCodeEU/facefolio/pkg/session"
	"github.com/MrCodeEU/facefolio/pkg/storage"
)

// Gallery is the persistent store of known identities.
type Gallery interface {
	Lookup() *recognition.Snapshot
	MergeAll(additions []storage.Addition) error
}

// Options tunes the pipeline.
type Options struct {
	MatchThreshold float64
	Dedupe         recognition.DedupeConfig
	Index          recognition.IndexKind
	CropPadding    float64
	CropMaxSide    int
	// CropWorkers bounds concurrent crop rendering per photo.
	CropWorkers int
}

// DefaultOptions returns the thresholds the pipeline was tuned with.
func DefaultOptions() Options {
	return Options{
		MatchThreshold: 0.6,
		Dedupe: recognition.DedupeConfig{
			SameFaceThreshold:    0.08,
			AmbiguityMaxDistance: 0.7,
			IoUThreshold:         0.6,
		},
		Index:       recognition.IndexLinear,
		CropPadding: media.DefaultPadding,
		CropMaxSide: 512,
		CropWorkers: 4,
	}
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Detector    detection.Detector
	Gallery     Gallery
	Sessions    session.Registry
	Collections collections.Store
	Scratch     *scratch.Dir
}

// Service implements process, finalize and the read-only listings.
type Service struct {
	detector    detection.Detector
	gallery     Gallery
	sessions    session.Registry
	collections collections.Store
	scratch     *scratch.Dir

	matcher *recognition.Matcher
	dedupe  *recognition.Deduplicator
	opts    Options
	log     *logging.Entry
}

// New creates a Service.
func New(deps Deps, opts Options) *Service {
	if opts.CropWorkers <= 0 {
		opts.CropWorkers = 1
	}
	s := &Service{
		detector:    deps.Detector,
		gallery:     deps.Gallery,
		sessions:    deps.Sessions,
		collections: deps.Collections,
		scratch:     deps.Scratch,
		matcher:     recognition.NewMatcher(opts.MatchThreshold, recognition.WithIndex(opts.Index)),
		dedupe:      recognition.NewDeduplicator(opts.Dedupe),
		opts:        opts,
		log:         logging.Component("resolver"),
	}
	return s
}

// ListKnown returns every known name in lexicographic order.
func (s *Service) ListKnown() []string {
	return s.gallery.Lookup().Names()
}

// ListCollections returns every collection and the photos filed into it.
func (s *Service) ListCollections(ctx context.Context) (map[string][]string, error) {
	return s.collections.List(ctx)
}

// CropPath resolves a crop reference to a file path for serving.
func (s *Service) CropPath(ref string) (string, error) {
	return s.scratch.CropPath(ref)
}
