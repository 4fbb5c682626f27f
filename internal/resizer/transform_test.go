package resizer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage renders a small gradient so resampling has real pixel data.
func testImage(t *testing.T, width, height int) image.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(t, width, height)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(t, width, height), nil))
	return buf.Bytes()
}

func TestDecodeDetectsFormat(t *testing.T) {
	img, format, err := Decode(pngBytes(t, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, imaging.PNG, format)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())

	_, format, err = Decode(jpegBytes(t, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, imaging.JPEG, format)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestFitInsideScalesDown(t *testing.T) {
	img := testImage(t, 300, 200)
	spec := DerivativeSpec{Width: 100, Height: 100, Suffix: "thumbnail"}

	out := FitInside(img, spec)

	// Aspect ratio 3:2 fitted into 100x100.
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.LessOrEqual(t, out.Bounds().Dy(), 67)
	assert.LessOrEqual(t, out.Bounds().Dx(), spec.Width)
	assert.LessOrEqual(t, out.Bounds().Dy(), spec.Height)
}

func TestFitInsideNeverEnlarges(t *testing.T) {
	img := testImage(t, 300, 200)

	for _, spec := range []DerivativeSpec{
		{Width: 500, Height: 500, Suffix: "medium"},
		{Width: 1024, Height: 1024, Suffix: "large"},
	} {
		out := FitInside(img, spec)
		assert.Equal(t, 300, out.Bounds().Dx(), "suffix %s", spec.Suffix)
		assert.Equal(t, 200, out.Bounds().Dy(), "suffix %s", spec.Suffix)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	img := testImage(t, 40, 30)

	out, err := Encode(img, imaging.PNG)
	require.NoError(t, err)

	decoded, format, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, imaging.PNG, format)
	assert.Equal(t, 40, decoded.Bounds().Dx())
	assert.Equal(t, 30, decoded.Bounds().Dy())
}

func TestTransformDeterministic(t *testing.T) {
	src := pngBytes(t, 300, 200)
	spec := DerivativeSpec{Width: 100, Height: 100, Suffix: "thumbnail"}

	img1, format, err := Decode(src)
	require.NoError(t, err)
	out1, err := Encode(FitInside(img1, spec), format)
	require.NoError(t, err)

	img2, format, err := Decode(src)
	require.NoError(t, err)
	out2, err := Encode(FitInside(img2, spec), format)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
}
