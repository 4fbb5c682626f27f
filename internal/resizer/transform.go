package resizer

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Decode parses image bytes and reports the detected format so derivatives
// can be re-encoded to match the original.
func Decode(src []byte) (image.Image, imaging.Format, error) {
	img, name, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}

	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return nil, 0, fmt.Errorf("unsupported image format %q: %w", name, err)
	}

	return img, format, nil
}

// FitInside scales img down to fit within the spec's bounding box,
// preserving aspect ratio. An image already inside the box is returned
// unscaled; derivatives are never larger than their source.
func FitInside(img image.Image, spec DerivativeSpec) image.Image {
	return imaging.Fit(img, spec.Width, spec.Height, imaging.Lanczos)
}

// Encode serializes img in the given format.
func Encode(img image.Image, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
