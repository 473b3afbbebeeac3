package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrCodeEU/facefolio/pkg/collections"
	"github.com/MrCodeEU/facefolio/pkg/metrics"
	"github.com/MrCodeEU/facefolio/pkg/session"
	"github.com/MrCodeEU/facefolio/pkg/storage"
)

// Label names one unidentified face.
type Label struct {
	TempID string `json:"temp_id"`
	Name   string `json:"name"`
}

// FinalizeRequest confirms the people in a processed photo.
type FinalizeRequest struct {
	Token            string   `json:"photo_token"`
	IdentifiedPeople []string `json:"identified_people"`
	NewLabels        []Label  `json:"new_labels"`
}

// FilingFailure is one collection that did not receive the photo.
type FilingFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// FinalizeResult reports what a finalize call did.
type FinalizeResult struct {
	// Learned lists the names whose embeddings were merged into the gallery.
	Learned []string `json:"learned"`
	// Filed lists the collections that received the photo.
	Filed  []string        `json:"sorted_into"`
	Errors []FilingFailure `json:"errors"`
}

// Finalize learns the labelled faces, files the photo into every named
// collection and retires the session.
//
// The request is validated in full before anything changes. Gallery merges
// happen before filing and are kept even if filing fails. When some names
// fail to file, the returned error is a *FilingError and the session stays
// open under the same token so the failed names can be retried.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	res, err := s.finalize(ctx, req)
	switch {
	case err == nil:
		metrics.Finalizations.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrFilingPartialFailure):
		metrics.Finalizations.WithLabelValues("partial").Inc()
	case errors.Is(err, session.ErrSessionNotFound):
		metrics.Finalizations.WithLabelValues("not_found").Inc()
	case IsValidation(err):
		metrics.Finalizations.WithLabelValues("rejected").Inc()
	default:
		metrics.Finalizations.WithLabelValues("error").Inc()
	}
	return res, err
}

func (s *Service) finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	sess, err := s.sessions.Get(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	labels, err := validateRequest(sess, req)
	if err != nil {
		return nil, err
	}

	// Of concurrent finalize calls for one token, only one gets past here.
	sess, err = s.sessions.Retire(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	log := s.log.WithField("session", sess.Token)

	// A partial finalize may have trimmed the session since Get.
	if labels, err = validateRequest(sess, req); err != nil {
		if rerr := s.sessions.Restore(context.WithoutCancel(ctx), sess); rerr != nil {
			log.Errorf("Failed to restore session after rejected request: %v", rerr)
		}
		return nil, err
	}

	var additions []storage.Addition
	for _, f := range sess.Faces {
		name, ok := labels[f.TempID]
		if !ok {
			continue
		}
		if len(f.Embedding) == 0 {
			log.Warnf("Face %s has no embedding; filing under %q without learning it", f.TempID, name)
			continue
		}
		additions = append(additions, storage.Addition{Name: name, Embedding: f.Embedding})
	}

	if err := s.gallery.MergeAll(additions); err != nil {
		if rerr := s.sessions.Restore(context.WithoutCancel(ctx), sess); rerr != nil {
			log.Errorf("Failed to restore session after gallery error: %v", rerr)
		}
		return nil, fmt.Errorf("failed to update gallery: %w", err)
	}
	metrics.GalleryEmbeddings.Set(float64(s.gallery.Lookup().Len()))

	result := &FinalizeResult{
		Learned: learnedNames(additions),
		Filed:   []string{},
		Errors:  []FilingFailure{},
	}

	names := filingTargets(req.IdentifiedPeople, labels)
	failed := s.file(ctx, sess, names, result)

	if len(failed) > 0 {
		ferr := &FilingError{Filed: result.Filed, Failed: failed}
		for _, name := range ferr.FailedNames() {
			result.Errors = append(result.Errors, FilingFailure{Name: name, Reason: failed[name].Error()})
		}
		s.keepForRetry(ctx, sess, labels)
		log.Warnf("Filed photo into %d of %d collection(s)", len(result.Filed), len(names))
		return result, ferr
	}

	s.retire(sess)
	log.Infof("Finalized photo: learned %d face(s), filed into %v", len(additions), result.Filed)
	return result, nil
}

// validateRequest checks every label and name and returns temp id -> name.
func validateRequest(sess *session.Session, req FinalizeRequest) (map[string]string, error) {
	labels := make(map[string]string, len(req.NewLabels))
	for _, l := range req.NewLabels {
		if _, ok := sess.Face(l.TempID); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCropReference, l.TempID)
		}
		if err := collections.ValidateName(l.Name); err != nil {
			return nil, err
		}
		if prev, ok := labels[l.TempID]; ok && prev != l.Name {
			return nil, fmt.Errorf("%w: face %s labelled %q and %q", ErrConflictingLabels, l.TempID, prev, l.Name)
		}
		labels[l.TempID] = l.Name
	}
	for _, name := range req.IdentifiedPeople {
		if err := collections.ValidateName(name); err != nil {
			return nil, err
		}
	}
	return labels, nil
}

// filingTargets is the sorted union of confirmed and newly labelled names.
func filingTargets(identified []string, labels map[string]string) []string {
	set := make(map[string]bool, len(identified)+len(labels))
	for _, name := range identified {
		set[name] = true
	}
	for _, name := range labels {
		set[name] = true
	}
	return sortedKeys(set)
}

func learnedNames(additions []storage.Addition) []string {
	set := make(map[string]bool, len(additions))
	for _, a := range additions {
		set[a.Name] = true
	}
	return sortedKeys(set)
}

// file copies the photo into each collection in order, stopping between
// names if ctx is cancelled. It returns the names that failed.
func (s *Service) file(ctx context.Context, sess *session.Session, names []string, result *FinalizeResult) map[string]error {
	failed := make(map[string]error)

	photoPath, err := s.scratch.PhotoPath(sess.PhotoRef)
	if err != nil {
		for _, name := range names {
			failed[name] = err
		}
		metrics.Filings.WithLabelValues("failed").Add(float64(len(names)))
		return failed
	}

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			for _, rest := range names[i:] {
				failed[rest] = err
			}
			metrics.Filings.WithLabelValues("failed").Add(float64(len(names) - i))
			break
		}
		if err := s.collections.File(ctx, name, sess.PhotoName, photoPath); err != nil {
			failed[name] = err
			metrics.Filings.WithLabelValues("failed").Inc()
			continue
		}
		result.Filed = append(result.Filed, name)
		metrics.Filings.WithLabelValues("ok").Inc()
	}
	return failed
}

// keepForRetry re-registers the session without the faces just labelled, so
// a retry only has to name the collections that failed.
func (s *Service) keepForRetry(ctx context.Context, sess *session.Session, labels map[string]string) {
	remaining := sess.Clone()
	remaining.Faces = remaining.Faces[:0]
	for _, f := range sess.Faces {
		if _, labelled := labels[f.TempID]; labelled {
			if err := s.scratch.DeleteCrop(f.CropRef); err != nil {
				s.log.Warnf("Failed to delete crop %s: %v", f.CropRef, err)
			}
			continue
		}
		remaining.Faces = append(remaining.Faces, f)
	}

	// The request context may be what interrupted filing.
	if err := s.sessions.Restore(context.WithoutCancel(ctx), remaining); err != nil {
		s.log.Errorf("Failed to keep session %s for retry: %v", sess.Token, err)
	}
}

// retire removes every scratch file belonging to a finished session.
func (s *Service) retire(sess *session.Session) {
	for _, ref := range sess.CropRefs() {
		if err := s.scratch.DeleteCrop(ref); err != nil {
			s.log.Warnf("Failed to delete crop %s: %v", ref, err)
		}
	}
	s.discardPhoto(sess.PhotoRef)
}
