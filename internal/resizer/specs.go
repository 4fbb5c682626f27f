package resizer

import (
	"net/url"
	"path"
	"strings"
)

// DerivativeSpec describes one resized variant to produce for every
// original: a bounding box and the suffix woven into the derivative's key.
type DerivativeSpec struct {
	Width  int
	Height int
	Suffix string
}

// DefaultSpecs is the fixed derivative set. Suffixes are unique; every
// original gets exactly these variants plus a verbatim copy.
var DefaultSpecs = []DerivativeSpec{
	{Width: 100, Height: 100, Suffix: "thumbnail"},
	{Width: 500, Height: 500, Suffix: "medium"},
	{Width: 1024, Height: 1024, Suffix: "large"},
}

// DerivativeKey derives the storage key for one variant:
// "photo.png" + "thumbnail" → "photo-thumbnail.png". Purely a function of
// its inputs, so re-running a resize overwrites rather than accumulates.
func DerivativeKey(originalKey, suffix string) string {
	ext := path.Ext(originalKey)
	base := strings.TrimSuffix(originalKey, ext)
	return base + "-" + suffix + ext
}

// DecodeKey undoes the URL escaping notification payloads apply to object
// keys, including "+" for spaces.
func DecodeKey(raw string) (string, error) {
	return url.QueryUnescape(raw)
}
