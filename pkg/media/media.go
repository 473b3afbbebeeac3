// Package media decodes uploaded photos and renders face crops.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

// ErrUnsupportedImage is returned when the bytes are not a decodable image.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// DefaultPadding is the fraction of the box size added on each side of a crop.
const DefaultPadding = 0.25

const jpegQuality = 90

// Decode decodes an image and returns it with its format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return img, format, nil
}

// CropOptions configures RenderCrop.
type CropOptions struct {
	// Padding is the fraction of the box width/height added on each side.
	Padding float64
	// MaxSide downscales crops whose longer side exceeds it. Zero disables scaling.
	MaxSide int
}

// PaddedRect expands box by padding on every side and clips it to bounds.
// The result covers every pixel the padded box touches.
func PaddedRect(box recognition.BoundingBox, padding float64, bounds image.Rectangle) image.Rectangle {
	px := box.Width() * padding
	py := box.Height() * padding
	r := image.Rect(
		int(math.Floor(box.X0-px))+bounds.Min.X,
		int(math.Floor(box.Y0-py))+bounds.Min.Y,
		int(math.Ceil(box.X1+px))+bounds.Min.X,
		int(math.Ceil(box.Y1+py))+bounds.Min.Y,
	)
	return r.Intersect(bounds)
}

// RenderCrop cuts the padded face region out of img and encodes it as JPEG.
func RenderCrop(img image.Image, box recognition.BoundingBox, opts CropOptions) ([]byte, error) {
	rect := PaddedRect(box, opts.Padding, img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop for box %+v is empty", box)
	}

	dstW, dstH := rect.Dx(), rect.Dy()
	if opts.MaxSide > 0 && max(dstW, dstH) > opts.MaxSide {
		scale := float64(opts.MaxSide) / float64(max(dstW, dstH))
		dstW = max(1, int(float64(dstW)*scale))
		dstH = max(1, int(float64(dstH)*scale))
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	if dstW == rect.Dx() && dstH == rect.Dy() {
		draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
