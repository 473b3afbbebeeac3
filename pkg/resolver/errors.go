package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MrCodeEU/facefolio/pkg/collections"
	"github.com/MrCodeEU/facefolio/pkg/detection"
	"github.com/MrCodeEU/facefolio/pkg/session"
	"github.com/MrCodeEU/facefolio/pkg/storage"
)

// ErrorCode classifies a resolver failure for callers.
type ErrorCode string

const (
	ErrCodeDetectionFailed      ErrorCode = "DETECTION_FAILED"
	ErrCodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeUnknownCropReference ErrorCode = "UNKNOWN_CROP_REFERENCE"
	ErrCodeInvalidName          ErrorCode = "INVALID_NAME"
	ErrCodeConflictingLabels    ErrorCode = "CONFLICTING_LABELS"
	ErrCodeGalleryCorrupt       ErrorCode = "GALLERY_CORRUPT"
	ErrCodeFilingPartialFailure ErrorCode = "FILING_PARTIAL_FAILURE"
	ErrCodeInternal             ErrorCode = "INTERNAL"
)

// ErrUnknownCropReference is returned when a label names a temp id the
// session does not hold.
var ErrUnknownCropReference = errors.New("unknown crop reference")

// ErrConflictingLabels is returned when one face is given two different names.
var ErrConflictingLabels = errors.New("conflicting labels")

// ErrFilingPartialFailure is returned when some collections did not receive the photo.
var ErrFilingPartialFailure = errors.New("filing partially failed")

// User-facing messages
var errorMessages = map[ErrorCode]string{
	ErrCodeDetectionFailed:      "The photo could not be processed. Please upload a valid image",
	ErrCodeSessionNotFound:      "This photo session has expired or was already finalized. Please upload it again",
	ErrCodeUnknownCropReference: "A label refers to a face that is not part of this photo",
	ErrCodeInvalidName:          "Names must be non-empty and cannot contain path separators",
	ErrCodeConflictingLabels:    "The same face was given two different names",
	ErrCodeGalleryCorrupt:       "The known-faces gallery is corrupt",
	ErrCodeFilingPartialFailure: "The photo could not be filed for everyone. Retry the failed names",
	ErrCodeInternal:             "Internal error",
}

// GetErrorMessage returns a user-facing message for an error code.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return errorMessages[ErrCodeInternal]
}

// CodeOf maps an error from any pipeline stage to its ErrorCode.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, detection.ErrDetectionFailed):
		return ErrCodeDetectionFailed
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrCodeSessionNotFound
	case errors.Is(err, ErrUnknownCropReference):
		return ErrCodeUnknownCropReference
	case errors.Is(err, collections.ErrInvalidName):
		return ErrCodeInvalidName
	case errors.Is(err, ErrConflictingLabels):
		return ErrCodeConflictingLabels
	case errors.Is(err, storage.ErrGalleryCorrupt):
		return ErrCodeGalleryCorrupt
	case errors.Is(err, ErrFilingPartialFailure):
		return ErrCodeFilingPartialFailure
	default:
		return ErrCodeInternal
	}
}

// IsValidation reports whether err rejected a request before any mutation.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUnknownCropReference, ErrCodeInvalidName, ErrCodeConflictingLabels:
		return true
	}
	return false
}

// FilingError reports which collections received the photo and which did not.
// Gallery merges made by the same call are kept.
type FilingError struct {
	Filed  []string
	Failed map[string]error
}

func (e *FilingError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failed[name])
	}
	return fmt.Sprintf("%v: %d filed, %d failed (%s)", ErrFilingPartialFailure, len(e.Filed), len(e.Failed), strings.Join(parts, "; "))
}

func (e *FilingError) Unwrap() error {
	return ErrFilingPartialFailure
}

// FailedNames returns the names that were not filed, sorted.
func (e *FilingError) FailedNames() []string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
