package raster

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode reads any registered image format and returns its pixels as
// non-premultiplied RGBA, row-major, 4 bytes per pixel.
func Decode(r io.Reader) (rgba []byte, width, height int, err error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*width && b.Min == (image.Point{}) {
		return n.Pix[:4*width*height], width, height, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst.Pix, width, height, nil
}

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// FormatFor picks the encoding from a file name. Unknown extensions get PNG.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		return BMP
	case ".tif", ".tiff":
		return TIFF
	}
	return PNG
}

func encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case PNG, "":
		return png.Encode(w, img)
	}
	return fmt.Errorf("unknown image format %q", f)
}

// EncodeRGBA writes width x height non-premultiplied RGBA pixels.
func EncodeRGBA(w io.Writer, f Format, rgba []byte, width, height int) error {
	if len(rgba) != 4*width*height {
		return fmt.Errorf("rgba length %d does not match %dx%d", len(rgba), width, height)
	}
	img := &image.NRGBA{Pix: rgba, Stride: 4 * width, Rect: image.Rect(0, 0, width, height)}
	return encode(w, img, f)
}

// EncodeGray writes one byte per pixel as grayscale, 0 black and 255 white.
func EncodeGray(w io.Writer, f Format, data []byte, width, height int) error {
	if len(data) != width*height {
		return fmt.Errorf("gray length %d does not match %dx%d", len(data), width, height)
	}
	img := &image.Gray{Pix: data, Stride: width, Rect: image.Rect(0, 0, width, height)}
	return encode(w, img, f)
}
