package template

import (
	"fmt"
	"io"

	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/palette"
	"pxlsync.dev/internal/raster"
)

// Design is a grid of palette indices. Transparent cells are not part of the
// template.
type Design struct {
	*buffer.Buffer2D[uint8]
	size int
}

func NewDesign(width, height int, data []uint8) *Design {
	b := buffer.New(width, height, data)
	blank := buffer.Filled[uint8](width, height, palette.Transparent)
	return &Design{Buffer2D: b, size: len(accel.Diff(b.Data, blank.Data))}
}

// Size is the number of non-transparent cells.
func (d *Design) Size() int { return d.size }

func (d *Design) Equals(other *Design) bool {
	return other != nil && d.Buffer2D.Equals(other.Buffer2D)
}

// DesignFromImage decodes an image and maps every pixel to its exact palette
// index. Colors not in the palette become transparent.
func DesignFromImage(r io.Reader, p palette.Palette) (*Design, error) {
	rgba, w, h, err := raster.Decode(r)
	if err != nil {
		return nil, err
	}
	return NewDesign(w, h, accel.Index(rgba, p)), nil
}

// Encode writes the design as an image, transparent cells with alpha 0.
func (d *Design) Encode(w io.Writer, f raster.Format, p palette.Palette) error {
	if err := raster.EncodeRGBA(w, f, accel.Deindex(d.Data, p), d.Width, d.Height); err != nil {
		return fmt.Errorf("encode design: %w", err)
	}
	return nil
}

// StylizedDesign is a design drawn with every cell blown up to a
// BlockW x BlockH block, as template hosting tools publish them.
type StylizedDesign struct {
	DesignW, DesignH int
	BlockW, BlockH   int
	data             []uint8
}

func NewStylized(designW, designH, blockW, blockH int, data []uint8) (*StylizedDesign, error) {
	if blockW <= 0 || blockH <= 0 {
		return nil, fmt.Errorf("stylized design: block %dx%d must be positive", blockW, blockH)
	}
	if designW < 0 || designH < 0 {
		return nil, fmt.Errorf("stylized design: negative size %dx%d", designW, designH)
	}
	if want := designW * designH * blockW * blockH; len(data) != want {
		return nil, fmt.Errorf("stylized design: %dx%d blocks of %dx%d need %d cells, got %d",
			designW, designH, blockW, blockH, want, len(data))
	}
	return &StylizedDesign{DesignW: designW, DesignH: designH, BlockW: blockW, BlockH: blockH, data: data}, nil
}

// Unstylize collapses every block to one cell. A 1x1 block is the identity.
func (s *StylizedDesign) Unstylize() *Design {
	if s.BlockW == 1 && s.BlockH == 1 {
		return NewDesign(s.DesignW, s.DesignH, append([]uint8(nil), s.data...))
	}
	out := accel.Unstylize(s.data, s.DesignW*s.BlockW, s.DesignH*s.BlockH, s.BlockW, s.BlockH)
	return NewDesign(s.DesignW, s.DesignH, out)
}
