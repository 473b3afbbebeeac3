package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

// ErrModelNotLoaded is returned when the dlib models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// FaceEngine is the subset of go-face used by DlibDetector.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

// DlibDetector runs dlib face detection and the 128-d ResNet descriptor
// in-process via go-face.
type DlibDetector struct {
	engine FaceEngine
	mu     sync.Mutex
}

// NewDlibDetector loads the dlib models from modelPath.
// The directory should contain:
// - shape_predictor_5_face_landmarks.dat
// - dlib_face_recognition_resnet_model_v1.dat
// - mmod_human_face_detector.dat
func NewDlibDetector(modelPath string) (*DlibDetector, error) {
	logging.Infof("Loading face recognition models from: %s", modelPath)

	rec, err := face.NewRecognizer(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	logging.Infof("Face recognition models loaded")
	return NewDlibDetectorWithEngine(rec), nil
}

// NewDlibDetectorWithEngine wraps an already constructed engine.
func NewDlibDetectorWithEngine(engine FaceEngine) *DlibDetector {
	return &DlibDetector{engine: engine}
}

// DetectAndEmbed implements Detector.
// go-face is not safe for concurrent use, so calls are serialized.
func (d *DlibDetector) DetectAndEmbed(ctx context.Context, image []byte) ([]recognition.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine == nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, ErrModelNotLoaded)
	}

	faces, err := d.engine.Recognize(image)
	if err != nil {
		return nil, failed("%v", err)
	}

	observations := make([]recognition.Observation, len(faces))
	for i, f := range faces {
		rect := f.Rectangle
		emb := make(recognition.Embedding, len(f.Descriptor))
		copy(emb, f.Descriptor[:])
		observations[i] = recognition.Observation{
			Box: recognition.BoundingBox{
				X0: float64(rect.Min.X),
				Y0: float64(rect.Min.Y),
				X1: float64(rect.Max.X),
				Y1: float64(rect.Max.Y),
			},
			Embedding: emb,
			// go-face doesn't report a confidence.
			Score: 1.0,
		}
	}

	logging.Debugf("Detected %d face(s) in image", len(observations))
	return observations, nil
}

// Close releases the dlib engine.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.engine.Close()
		d.engine = nil
	}
	return nil
}
