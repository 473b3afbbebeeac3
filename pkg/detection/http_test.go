package detection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

func TestHTTPDetector_DetectAndEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embed/face", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, jpegHeader, data)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(faceResponse{
			FacesCount: 2,
			Model:      "buffalo_l",
			Faces: []faceDetection{
				{FaceIndex: 0, Dim: 3, Embedding: []float32{1, 0, 0}, BBox: []float64{1, 2, 30, 40}, DetScore: 0.9},
				{FaceIndex: 1, Dim: 0, BBox: []float64{50, 60, 70, 80}, DetScore: 0.4},
			},
		})
	}))
	defer srv.Close()

	d := NewHTTPDetector(srv.URL+"/", 5*time.Second)
	obs, err := d.DetectAndEmbed(context.Background(), jpegHeader)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, 1.0, obs[0].Box.X0)
	assert.Equal(t, 40.0, obs[0].Box.Y1)
	assert.Len(t, obs[0].Embedding, 3)
	assert.Equal(t, 0.9, obs[0].Score)

	assert.False(t, obs[1].HasEmbedding())
}

func TestHTTPDetector_NoFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"faces_count":0,"faces":[]}`))
	}))
	defer srv.Close()

	obs, err := NewHTTPDetector(srv.URL, time.Second).DetectAndEmbed(context.Background(), jpegHeader)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestHTTPDetector_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
		{
			name: "malformed bbox",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"faces":[{"bbox":[1,2,3]}]}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPDetector(srv.URL, time.Second).DetectAndEmbed(context.Background(), jpegHeader)
			assert.True(t, errors.Is(err, ErrDetectionFailed), "got %v", err)
		})
	}
}

func TestHTTPDetector_EmptyImage(t *testing.T) {
	_, err := NewHTTPDetector("http://127.0.0.1:1", time.Second).DetectAndEmbed(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDetectionFailed)
}

func TestHTTPDetector_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPDetector(url, time.Second).DetectAndEmbed(context.Background(), jpegHeader)
	assert.ErrorIs(t, err, ErrDetectionFailed)
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", jpegHeader, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"short", []byte{0xFF}, "application/octet-stream"},
		{"unknown", []byte("plain text data"), "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectMIMEType(tt.data))
		})
	}
}
