package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrCodeEU/facefolio/pkg/resolver"
	"github.com/MrCodeEU/facefolio/pkg/scratch"
)

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeTooLarge       = "UPLOAD_TOO_LARGE"
	codeNotFound       = "NOT_FOUND"

	maxFinalizeBody = 1 << 20
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// partialBody is the 207 response: the finalize result plus the error code.
type partialBody struct {
	*resolver.FinalizeResult
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// statusFor maps a resolver error code to an HTTP status.
func statusFor(code resolver.ErrorCode) int {
	switch code {
	case resolver.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case resolver.ErrCodeUnknownCropReference, resolver.ErrCodeInvalidName, resolver.ErrCodeConflictingLabels:
		return http.StatusBadRequest
	case resolver.ErrCodeDetectionFailed:
		return http.StatusUnprocessableEntity
	case resolver.ErrCodeFilingPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// respondError sends err with the status and message for its error code.
// Internal errors are logged and not echoed.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := resolver.CodeOf(err)
	status := statusFor(code)
	body := errorBody{Code: string(code), Message: resolver.GetErrorMessage(code)}
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Errorf("%s %s failed", r.Method, r.URL.Path)
	} else {
		body.Detail = err.Error()
	}
	respondJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"known":  len(s.resolver.ListKnown()),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.cfg.MaxUploadMB) << 20
	if r.ContentLength > limit {
		respondJSON(w, http.StatusRequestEntityTooLarge, errorBody{Code: codeTooLarge, Message: "The uploaded photo is too large"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, errorBody{Code: codeTooLarge, Message: "The uploaded photo is too large"})
			return
		}
		respondJSON(w, http.StatusBadRequest, errorBody{Code: codeInvalidRequest, Message: "Expected a multipart upload", Detail: err.Error()})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Code: codeInvalidRequest, Message: "Missing form field \"file\""})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Code: codeInvalidRequest, Message: "Failed to read the upload", Detail: err.Error()})
		return
	}

	result, err := s.resolver.Process(r.Context(), header.Filename, data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req resolver.FinalizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFinalizeBody)).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Code: codeInvalidRequest, Message: "Invalid request body", Detail: err.Error()})
		return
	}

	result, err := s.resolver.Finalize(r.Context(), req)
	if err != nil {
		if errors.Is(err, resolver.ErrFilingPartialFailure) && result != nil {
			code := resolver.ErrCodeFilingPartialFailure
			respondJSON(w, statusFor(code), partialBody{
				FinalizeResult: result,
				Code:           string(code),
				Message:        resolver.GetErrorMessage(code),
			})
			return
		}
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleKnown(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"known_people": s.resolver.ListKnown()})
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.resolver.ListCollections(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]map[string][]string{"collections": cols})
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	path, err := s.resolver.CropPath(chi.URLParam(r, "ref"))
	if err != nil {
		if errors.Is(err, scratch.ErrInvalidRef) || errors.Is(err, scratch.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, errorBody{Code: codeNotFound, Message: "Crop not found"})
			return
		}
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}
