package accel

import (
	"fmt"

	"pxlsync.dev/internal/palette"
)

// Index maps every 4-byte RGBA pixel to the palette index of the exact same
// color. Fully transparent pixels and colors missing from the palette map to
// palette.Transparent.
func Index(rgba []byte, p palette.Palette) []byte {
	if len(rgba)%4 != 0 {
		panic(fmt.Sprintf("accel: rgba length %d is not a multiple of 4", len(rgba)))
	}
	return Active().Index(rgba, p)
}

// Deindex is the inverse of Index. The sentinel (and any index outside the
// palette) becomes a pixel with alpha 0; everything else is opaque.
func Deindex(indices []byte, p palette.Palette) []byte {
	return Active().Deindex(indices, p)
}

// Unstylize decodes a stylized template image where every design cell spans a
// blockW x blockH block. See the reference backend for the selection policy.
func Unstylize(img []byte, imageW, imageH, blockW, blockH int) []byte {
	checkStyle(img, imageW, imageH, blockW, blockH)
	return Active().Unstylize(img, imageW, imageH, blockW, blockH)
}

// Diff returns the ascending indices where a and b differ.
func Diff[T Integer](a, b []T) []uint32 {
	checkLen(len(a), len(b), "diff")
	be := Active()
	parts := make([][]uint32, be.NumSpans(len(a)))
	be.Spans(len(a), func(i int, s Span) {
		var out []uint32
		for j := s.Lo; j < s.Hi; j++ {
			if a[j] != b[j] {
				out = append(out, uint32(j))
			}
		}
		parts[i] = out
	})

	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]uint32, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Mask zeroes a wherever b is zero.
func Mask[T Integer](a, b []T) []T {
	checkLen(len(a), len(b), "mask")
	return zip(a, b, func(x, m T) T {
		if m == 0 {
			return 0
		}
		return x
	})
}

// Add adds s to every element, wrapping at the element width.
func Add[T Integer](a []T, s T) []T {
	return mapEach(a, func(x T) T { return x + s })
}

func AddArray[T Integer](a, b []T) []T {
	checkLen(len(a), len(b), "add")
	return zip(a, b, func(x, y T) T { return x + y })
}

// Multiply multiplies every element by s, wrapping at the element width.
func Multiply[T Integer](a []T, s T) []T {
	return mapEach(a, func(x T) T { return x * s })
}

func MultiplyArray[T Integer](a, b []T) []T {
	checkLen(len(a), len(b), "multiply")
	return zip(a, b, func(x, y T) T { return x * y })
}

func mapEach[T Integer](a []T, f func(T) T) []T {
	out := make([]T, len(a))
	Active().Spans(len(a), func(_ int, s Span) {
		for j := s.Lo; j < s.Hi; j++ {
			out[j] = f(a[j])
		}
	})
	return out
}

func zip[T Integer](a, b []T, f func(T, T) T) []T {
	out := make([]T, len(a))
	Active().Spans(len(a), func(_ int, s Span) {
		for j := s.Lo; j < s.Hi; j++ {
			out[j] = f(a[j], b[j])
		}
	})
	return out
}

func checkLen(a, b int, op string) {
	if a != b {
		panic(fmt.Sprintf("accel: %s of unequal lengths %d and %d", op, a, b))
	}
}

func checkStyle(img []byte, imageW, imageH, blockW, blockH int) {
	switch {
	case blockW <= 0 || blockH <= 0:
		panic(fmt.Sprintf("accel: unstylize block %dx%d must be positive", blockW, blockH))
	case imageW < 0 || imageH < 0 || len(img) != imageW*imageH:
		panic(fmt.Sprintf("accel: unstylize image %dx%d does not match %d bytes", imageW, imageH, len(img)))
	case imageW%blockW != 0 || imageH%blockH != 0:
		panic(fmt.Sprintf("accel: unstylize image %dx%d is not a whole number of %dx%d blocks", imageW, imageH, blockW, blockH))
	}
}
