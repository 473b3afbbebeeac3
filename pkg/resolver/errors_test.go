package resolver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrCodeEU/facefolio/pkg/collections"
	"github.com/MrCodeEU/facefolio/pkg/detection"
	"github.com/MrCodeEU/facefolio/pkg/session"
	"github.com/MrCodeEU/facefolio/pkg/storage"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", detection.ErrDetectionFailed), ErrCodeDetectionFailed},
		{session.ErrSessionNotFound, ErrCodeSessionNotFound},
		{fmt.Errorf("%w: %q", ErrUnknownCropReference, "x"), ErrCodeUnknownCropReference},
		{fmt.Errorf("%w: empty", collections.ErrInvalidName), ErrCodeInvalidName},
		{ErrConflictingLabels, ErrCodeConflictingLabels},
		{fmt.Errorf("load: %w", storage.ErrGalleryCorrupt), ErrCodeGalleryCorrupt},
		{&FilingError{Failed: map[string]error{"a": errors.New("x")}}, ErrCodeFilingPartialFailure},
		{errors.New("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.want {
			t.Errorf("CodeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(ErrConflictingLabels) {
		t.Error("conflicting labels should be a validation error")
	}
	if IsValidation(session.ErrSessionNotFound) {
		t.Error("session not found is not a validation error")
	}
	if IsValidation(nil) {
		t.Error("nil is not a validation error")
	}
}

func TestGetErrorMessage(t *testing.T) {
	if GetErrorMessage(ErrCodeInvalidName) == GetErrorMessage(ErrCodeInternal) {
		t.Error("expected a specific message for INVALID_NAME")
	}
	if GetErrorMessage("NOPE") != GetErrorMessage(ErrCodeInternal) {
		t.Error("unknown codes should fall back to the internal message")
	}
}

func TestFilingError(t *testing.T) {
	err := &FilingError{
		Filed:  []string{"alice"},
		Failed: map[string]error{"carl": errors.New("quota"), "bob": errors.New("disk full")},
	}

	if !errors.Is(err, ErrFilingPartialFailure) {
		t.Error("FilingError should unwrap to ErrFilingPartialFailure")
	}
	want := "filing partially failed: 1 filed, 2 failed (bob: disk full; carl: quota)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if names := err.FailedNames(); len(names) != 2 || names[0] != "bob" {
		t.Errorf("FailedNames() = %v", names)
	}
}
