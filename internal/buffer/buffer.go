package buffer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"pxlsync.dev/internal/accel"
)

// Buffer2D is a Width x Height grid over a flat row-major slice.
// Cell (x, y) lives at Data[x + y*Width].
type Buffer2D[T accel.Integer] struct {
	Width  int
	Height int
	Data   []T
}

// New wraps data. A length that does not match the dimensions is a
// programming error and panics.
func New[T accel.Integer](width, height int, data []T) *Buffer2D[T] {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("buffer: negative dimensions %dx%d", width, height))
	}
	if len(data) != width*height {
		panic(fmt.Sprintf("buffer: dimensions %dx%d do not match data length %d", width, height, len(data)))
	}
	return &Buffer2D[T]{Width: width, Height: height, Data: data}
}

// Filled returns a buffer with every cell set to v.
func Filled[T accel.Integer](width, height int, v T) *Buffer2D[T] {
	data := make([]T, width*height)
	if v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return New(width, height, data)
}

func (b *Buffer2D[T]) Len() int { return len(b.Data) }

func (b *Buffer2D[T]) Clone() *Buffer2D[T] {
	return New(b.Width, b.Height, append([]T(nil), b.Data...))
}

func (b *Buffer2D[T]) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// Index returns the flat address of (x, y). Out-of-range coordinates panic.
func (b *Buffer2D[T]) Index(x, y int) int {
	if !b.Contains(x, y) {
		panic(fmt.Sprintf("buffer: (%d,%d) outside %dx%d", x, y, b.Width, b.Height))
	}
	return x + y*b.Width
}

func (b *Buffer2D[T]) Position(i int) (x, y int) {
	return i % b.Width, i / b.Width
}

func (b *Buffer2D[T]) Get(x, y int) T { return b.Data[b.Index(x, y)] }

func (b *Buffer2D[T]) Put(x, y int, v T) { b.Data[b.Index(x, y)] = v }

// Crop returns a new w x h buffer taken at (x, y). The rectangle may hang off
// any edge of the source, including negative x/y; cells with no source
// counterpart are set to blank.
func (b *Buffer2D[T]) Crop(x, y, w, h int, blank T) *Buffer2D[T] {
	if w < 0 || h < 0 {
		panic(fmt.Sprintf("buffer: crop size %dx%d must not be negative", w, h))
	}
	out := Filled(w, h, blank)

	putX, putY := max(-x, 0), max(-y, 0)
	takeX, takeY := max(x, 0), max(y, 0)
	cw := min(w-putX, b.Width-takeX)
	ch := min(h-putY, b.Height-takeY)
	if cw <= 0 || ch <= 0 {
		return out
	}

	for row := 0; row < ch; row++ {
		src := (row+takeY)*b.Width + takeX
		dst := (row+putY)*w + putX
		copy(out.Data[dst:dst+cw], b.Data[src:src+cw])
	}
	return out
}

// Hash is the hex sha256 of the little-endian cell bytes.
func (b *Buffer2D[T]) Hash() string {
	h := sha256.New()
	if raw, ok := any(b.Data).([]uint8); ok {
		h.Write(raw)
	} else {
		_ = binary.Write(h, binary.LittleEndian, b.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (b *Buffer2D[T]) Equals(other *Buffer2D[T]) bool {
	if other == nil {
		return false
	}
	return b.Width == other.Width &&
		b.Height == other.Height &&
		len(accel.Diff(b.Data, other.Data)) == 0
}

// Differences lists the flat indices where the buffers disagree. Buffers of
// different dimensions cannot be compared and panic.
func (b *Buffer2D[T]) Differences(other *Buffer2D[T]) []uint32 {
	if b.Width != other.Width || b.Height != other.Height {
		panic(fmt.Sprintf("buffer: cannot compare %dx%d with %dx%d", b.Width, b.Height, other.Width, other.Height))
	}
	return accel.Diff(b.Data, other.Data)
}
