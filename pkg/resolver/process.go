package resolver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrCodeEU/facefolio/pkg/collections"
	"github.com/MrCodeEU/facefolio/pkg/detection"
	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/media"
	"github.com/MrCodeEU/facefolio/pkg/metrics"
	"github.com/MrCodeEU/facefolio/pkg/recognition"
	"github.com/MrCodeEU/facefolio/pkg/session"
)

// UnidentifiedFace is a face the client is asked to label.
type UnidentifiedFace struct {
	TempID  string `json:"temp_id"`
	CropRef string `json:"crop_ref"`
}

// ProcessResult is returned by Process.
type ProcessResult struct {
	Token        string             `json:"photo_token"`
	Identified   []string           `json:"identified_people"`
	Unidentified []UnidentifiedFace `json:"unidentified_faces"`
}

type pendingFace struct {
	obs     recognition.Observation
	verdict recognition.Verdict
	cropRef string
}

// Process detects the faces in a photo, resolves them against the gallery
// and opens a session holding the faces that still need a name.
func (s *Service) Process(ctx context.Context, fileName string, data []byte) (*ProcessResult, error) {
	res, err := s.process(ctx, fileName, data)
	switch {
	case err == nil:
		metrics.PhotosProcessed.WithLabelValues("ok").Inc()
	case errors.Is(err, detection.ErrDetectionFailed):
		metrics.PhotosProcessed.WithLabelValues("detection_failed").Inc()
	default:
		metrics.PhotosProcessed.WithLabelValues("error").Inc()
	}
	return res, err
}

func (s *Service) process(ctx context.Context, fileName string, data []byte) (*ProcessResult, error) {
	img, format, err := media.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrDetectionFailed, err)
	}

	photoRef, err := s.scratch.SavePhoto(fileName, data)
	if err != nil {
		return nil, err
	}
	log := s.log.WithFields(logging.Fields{"photo": photoRef, "format": format})

	observations, err := s.detector.DetectAndEmbed(ctx, data)
	if err != nil {
		s.discardPhoto(photoRef)
		if !errors.Is(err, detection.ErrDetectionFailed) {
			err = fmt.Errorf("%w: %w", detection.ErrDetectionFailed, err)
		}
		return nil, err
	}

	bounds := img.Bounds()
	clamped := make([]recognition.Observation, 0, len(observations))
	for _, o := range observations {
		o.Box = o.Box.Clamp(bounds.Dx(), bounds.Dy())
		// Slivers left by clamping cover no whole pixel and cannot be cropped.
		if o.Box.Width() < 1 || o.Box.Height() < 1 {
			log.Debugf("Dropping degenerate box %+v", o.Box)
			continue
		}
		clamped = append(clamped, o)
	}

	unique := s.dedupe.Dedupe(clamped)
	metrics.Faces.WithLabelValues("duplicate").Add(float64(len(clamped) - len(unique)))

	snap := s.gallery.Lookup()
	identified := make(map[string]bool)
	var pending []pendingFace
	for _, o := range unique {
		verdict := recognition.NoMatch(-1)
		if o.HasEmbedding() {
			verdict = s.matcher.Classify(o.Embedding, snap)
			if verdict.Distance >= 0 {
				metrics.MatchDistance.Observe(verdict.Distance)
			}
		}
		if verdict.IsIdentified() {
			identified[verdict.Name] = true
			continue
		}
		pending = append(pending, pendingFace{obs: o, verdict: verdict})
	}

	if err := s.renderCrops(ctx, img, pending); err != nil {
		s.discardCrops(pending)
		s.discardPhoto(photoRef)
		return nil, err
	}

	sess := &session.Session{
		PhotoRef:   photoRef,
		PhotoName:  filingName(fileName, photoRef),
		Identified: sortedKeys(identified),
		Faces:      make([]session.Face, len(pending)),
	}
	for i, p := range pending {
		sess.Faces[i] = session.Face{
			TempID:    uuid.NewString(),
			CropRef:   p.cropRef,
			Box:       p.obs.Box,
			Embedding: p.obs.Embedding,
			Verdict:   p.verdict,
		}
	}

	token, err := s.sessions.Create(ctx, sess)
	if err != nil {
		s.discardCrops(pending)
		s.discardPhoto(photoRef)
		return nil, fmt.Errorf("failed to register session: %w", err)
	}

	metrics.Faces.WithLabelValues("identified").Add(float64(len(unique) - len(pending)))
	metrics.Faces.WithLabelValues("unidentified").Add(float64(len(pending)))
	log.WithField("session", token).Infof("Processed photo: %d face(s), %d identified, %d to label",
		len(unique), len(unique)-len(pending), len(pending))

	result := &ProcessResult{
		Token:        token,
		Identified:   sess.Identified,
		Unidentified: make([]UnidentifiedFace, len(sess.Faces)),
	}
	for i, f := range sess.Faces {
		result.Unidentified[i] = UnidentifiedFace{TempID: f.TempID, CropRef: f.CropRef}
	}
	return result, nil
}

// renderCrops writes a padded JPEG crop for every pending face.
func (s *Service) renderCrops(ctx context.Context, img image.Image, pending []pendingFace) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.CropWorkers)

	cropOpts := media.CropOptions{Padding: s.opts.CropPadding, MaxSide: s.opts.CropMaxSide}
	for i := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := media.RenderCrop(img, pending[i].obs.Box, cropOpts)
			if err != nil {
				return fmt.Errorf("render crop: %w", err)
			}
			ref, err := s.scratch.SaveCrop(data)
			if err != nil {
				return err
			}
			pending[i].cropRef = ref
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) discardPhoto(ref string) {
	if err := s.scratch.DeletePhoto(ref); err != nil {
		s.log.Warnf("Failed to delete scratch photo %s: %v", ref, err)
	}
}

func (s *Service) discardCrops(pending []pendingFace) {
	for _, p := range pending {
		if p.cropRef == "" {
			continue
		}
		if err := s.scratch.DeleteCrop(p.cropRef); err != nil {
			s.log.Warnf("Failed to delete crop %s: %v", p.cropRef, err)
		}
	}
}

// filingName is the name the photo is filed under: the upload's base name
// when it is a safe file name, otherwise the scratch reference.
func filingName(uploadName, photoRef string) string {
	base := path.Base(strings.ReplaceAll(uploadName, `\`, "/"))
	if collections.ValidateName(base) != nil {
		return photoRef
	}
	return base
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
