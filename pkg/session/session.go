// Package session holds the scratch state that bridges detection and
// confirmation of one uploaded photo. Sessions are not durable: a restart
// with the memory registry forgets them, and callers see ErrSessionNotFound.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

// ErrSessionNotFound is returned for unknown, expired or already finalized tokens.
var ErrSessionNotFound = errors.New("session not found")

// Face is an unidentified face awaiting a label.
type Face struct {
	TempID    string                  `json:"temp_id"`
	CropRef   string                  `json:"crop_ref"`
	Box       recognition.BoundingBox `json:"box"`
	Embedding recognition.Embedding   `json:"embedding,omitempty"`
	Verdict   recognition.Verdict     `json:"verdict"`
}

// Session is the resolution state for one uploaded photo.
// It is never updated in place: finalize retires it as a whole.
type Session struct {
	Token string `json:"token"`
	// PhotoRef names the scratch copy of the original photo.
	PhotoRef string `json:"photo_ref"`
	// PhotoName is the upload's file name, used when filing.
	PhotoName  string    `json:"photo_name"`
	Faces      []Face    `json:"faces"`
	Identified []string  `json:"identified"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Face returns the pending face with the given temp id.
func (s *Session) Face(tempID string) (Face, bool) {
	for _, f := range s.Faces {
		if f.TempID == tempID {
			return f, true
		}
	}
	return Face{}, false
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// CropRefs returns the crop references of every pending face.
func (s *Session) CropRefs() []string {
	refs := make([]string, 0, len(s.Faces))
	for _, f := range s.Faces {
		refs = append(refs, f.CropRef)
	}
	return refs
}

// Clone returns a deep copy of the session's slices.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Faces = make([]Face, len(s.Faces))
	copy(cp.Faces, s.Faces)
	cp.Identified = make([]string, len(s.Identified))
	copy(cp.Identified, s.Identified)
	return &cp
}

// Registry owns sessions from creation until retirement.
type Registry interface {
	// Create assigns a fresh token to s, registers it and returns the token.
	Create(ctx context.Context, s *Session) (string, error)
	// Get returns the session for token without retiring it.
	Get(ctx context.Context, token string) (*Session, error)
	// Retire atomically removes and returns the session for token.
	// Of several concurrent callers, exactly one receives the session.
	Retire(ctx context.Context, token string) (*Session, error)
	// Restore re-registers a retired session under its original token.
	Restore(ctx context.Context, s *Session) error
}

// Sweeper is implemented by registries that expire sessions themselves.
type Sweeper interface {
	// Sweep removes and returns every session expired at now.
	Sweep(now time.Time) []*Session
}
