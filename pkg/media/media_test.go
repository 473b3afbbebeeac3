package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrCodeEU/facefolio/pkg/recognition"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, format, err := Decode(encodePNG(t, testImage(20, 10)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, _, err = Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestPaddedRect(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)

	r := PaddedRect(recognition.BoundingBox{X0: 40, Y0: 20, X1: 80, Y1: 60}, 0.25, bounds)
	assert.Equal(t, image.Rect(30, 10, 90, 70), r)

	// Clipped at the image edges.
	r = PaddedRect(recognition.BoundingBox{X0: 0, Y0: 0, X1: 40, Y1: 40}, 0.25, bounds)
	assert.Equal(t, image.Rect(0, 0, 50, 50), r)

	r = PaddedRect(recognition.BoundingBox{X0: 180, Y0: 80, X1: 200, Y1: 100}, 0.5, bounds)
	assert.Equal(t, image.Rect(170, 70, 200, 100), r)

	// Fractional edges round outwards.
	r = PaddedRect(recognition.BoundingBox{X0: 10.2, Y0: 10.2, X1: 10.8, Y1: 10.8}, 0.25, bounds)
	assert.Equal(t, image.Rect(10, 10, 11, 11), r)

	r = PaddedRect(recognition.BoundingBox{X0: 0, Y0: 20, X1: 0.5, Y1: 60}, 0.25, bounds)
	assert.Equal(t, image.Rect(0, 10, 1, 70), r)
}

func TestRenderCrop_SubPixelBox(t *testing.T) {
	data, err := RenderCrop(testImage(200, 100), recognition.BoundingBox{X0: 10.2, Y0: 10.2, X1: 10.8, Y1: 10.8}, CropOptions{Padding: DefaultPadding})
	require.NoError(t, err)

	crop, _, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 1, crop.Bounds().Dx())
}

func TestRenderCrop(t *testing.T) {
	img := testImage(200, 100)

	data, err := RenderCrop(img, recognition.BoundingBox{X0: 40, Y0: 20, X1: 80, Y1: 60}, CropOptions{Padding: DefaultPadding})
	require.NoError(t, err)

	crop, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 60, crop.Bounds().Dx())
	assert.Equal(t, 60, crop.Bounds().Dy())
}

func TestRenderCrop_Downscales(t *testing.T) {
	img := testImage(400, 400)

	data, err := RenderCrop(img, recognition.BoundingBox{X0: 0, Y0: 0, X1: 400, Y1: 200}, CropOptions{MaxSide: 100})
	require.NoError(t, err)

	crop, _, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 100, crop.Bounds().Dx())
	assert.Equal(t, 50, crop.Bounds().Dy())
}

func TestRenderCrop_EmptyBox(t *testing.T) {
	_, err := RenderCrop(testImage(50, 50), recognition.BoundingBox{X0: 60, Y0: 60, X1: 70, Y1: 70}, CropOptions{})
	assert.Error(t, err)
}
