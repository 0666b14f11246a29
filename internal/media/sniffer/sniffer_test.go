package sniffer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	cases := map[string]struct {
		head []byte
		want MediaType
	}{
		"jpeg": {[]byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, TypeJPEG},
		"png":  {[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0}, TypePNG},
		"gif":  {[]byte("GIF89a......"), TypeGIF},
		"webp": {[]byte("RIFF\x10\x00\x00\x00WEBPVP8 "), TypeWEBP},
		"bmp":  {[]byte("BM\x00\x00\x00\x00\x00\x00\x00\x00\x36\x00\x00\x00"), TypeBMP},
		"tiff": {[]byte("II*\x00\x08\x00"), TypeTIFF},
		"avif": {[]byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), TypeAVIF},
		"svg":  {[]byte("  <svg xmlns=\"http://www.w3.org/2000/svg\"/>"), TypeSVG},
		"xml":  {[]byte("<?xml version=\"1.0\"?>\n<svg/>"), TypeSVG},
	}
	for name, tc := range cases {
		got, err := DetectHead(tc.head)
		require.NoError(t, err, name)
		require.Equal(t, tc.want, got.Type, name)
	}
}

func TestDetectHeadUnknown(t *testing.T) {
	for _, head := range [][]byte{nil, []byte("hello world"), []byte("<?xml version=\"1.0\"?><feed/>")} {
		_, err := DetectHead(head)
		require.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestResultHelpers(t *testing.T) {
	require.Equal(t, ".jpg", Result{Type: TypeJPEG}.Extension())
	require.Equal(t, ".png", Result{Type: TypePNG}.Extension())
	require.Equal(t, "", Result{}.Extension())
	require.True(t, Result{Type: TypeWEBP}.Raster())
	require.False(t, Result{Type: TypeSVG}.Raster())
	require.False(t, Result{Type: TypeAVIF}.Raster())
}

func TestMimeTypeFromHTTP(t *testing.T) {
	h := http.Header{}
	require.Equal(t, "", MimeTypeFromHTTP(h))

	h.Set("Content-Type", "Image/PNG; charset=binary")
	require.Equal(t, "image/png", MimeTypeFromHTTP(h))

	h.Set("Content-Type", "image/jpeg;;")
	require.Equal(t, "image/jpeg", MimeTypeFromHTTP(h))
}
