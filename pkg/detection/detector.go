// Package detection turns photo bytes into face observations.
// Two backends are provided: an HTTP client for an external embedding
// service and an in-process dlib engine via go-face.
package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

// ErrDetectionFailed is returned when the detector cannot process an image.
var ErrDetectionFailed = errors.New("face detection failed")

// Detector finds faces in an image and computes their embeddings.
// A photo with no faces yields an empty slice and a nil error.
type Detector interface {
	DetectAndEmbed(ctx context.Context, image []byte) ([]recognition.Observation, error)
}

// Closer is implemented by detectors that hold native resources.
type Closer interface {
	Close() error
}

func failed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDetectionFailed, fmt.Sprintf(format, args...))
}
