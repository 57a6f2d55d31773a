package accel

import "pxlsync.dev/internal/palette"

type reference struct{}

// Reference returns the scalar backend. It has no requirements and is the
// definition every other backend is tested against.
func Reference() Backend { return reference{} }

func (reference) Name() string { return "reference" }
func (reference) Init() error  { return nil }

func (reference) NumSpans(n int) int {
	if n <= 0 {
		return 0
	}
	return 1
}

func (reference) Spans(n int, fn func(i int, s Span)) {
	if n > 0 {
		fn(0, Span{Lo: 0, Hi: n})
	}
}

func (reference) Index(rgba []byte, p palette.Palette) []byte {
	out := make([]byte, len(rgba)/4)
	for i := range out {
		px := rgba[i*4 : i*4+4]
		if px[3] == 0 {
			out[i] = palette.Transparent
			continue
		}
		out[i], _ = p.Lookup(px[0], px[1], px[2])
	}
	return out
}

func (reference) Deindex(indices []byte, p palette.Palette) []byte {
	out := make([]byte, len(indices)*4)
	for i, v := range indices {
		if !p.Valid(int(v)) {
			continue
		}
		c := p[v]
		out[i*4+0] = c.R
		out[i*4+1] = c.G
		out[i*4+2] = c.B
		out[i*4+3] = 255
	}
	return out
}

// Unstylize picks one color per block: the first non-transparent pixel in
// row-major order within the block. When blocks hold more than one pixel the
// pixel at the image origin is never sampled, since template tools store
// their own data there. A block with no usable pixel decodes as transparent.
func (reference) Unstylize(img []byte, imageW, imageH, blockW, blockH int) []byte {
	w, h := imageW/blockW, imageH/blockH
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[x+y*w] = reduceBlock(img, imageW, x, y, blockW, blockH)
		}
	}
	return out
}

func reduceBlock(img []byte, imageW, bx, by, blockW, blockH int) byte {
	origin := by*blockH*imageW + bx*blockW
	skipOrigin := blockW*blockH > 1
	for yy := 0; yy < blockH; yy++ {
		for xx := 0; xx < blockW; xx++ {
			pos := origin + yy*imageW + xx
			if pos == 0 && skipOrigin {
				continue
			}
			if v := img[pos]; v != palette.Transparent {
				return v
			}
		}
	}
	return palette.Transparent
}
