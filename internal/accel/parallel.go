package accel

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"pxlsync.dev/internal/palette"
)

const defaultMinSpan = 1 << 14

type parallel struct {
	workers int
	minSpan int
}

// Parallel returns the goroutine backend. workers <= 0 means GOMAXPROCS.
func Parallel(workers int) Backend {
	return newParallel(workers, defaultMinSpan)
}

func newParallel(workers, minSpan int) *parallel {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if minSpan <= 0 {
		minSpan = 1
	}
	return &parallel{workers: workers, minSpan: minSpan}
}

func (p *parallel) Name() string { return fmt.Sprintf("parallel(%d)", p.workers) }

func (p *parallel) Init() error {
	if p.workers < 2 {
		return fmt.Errorf("%w: parallel needs 2 workers, have %d", ErrUnavailable, p.workers)
	}
	return nil
}

func (p *parallel) NumSpans(n int) int {
	if n <= 0 {
		return 0
	}
	k := (n + p.minSpan - 1) / p.minSpan
	if k > p.workers {
		k = p.workers
	}
	return k
}

func (p *parallel) Spans(n int, fn func(i int, s Span)) {
	k := p.NumSpans(n)
	switch k {
	case 0:
		return
	case 1:
		fn(0, Span{Lo: 0, Hi: n})
		return
	}

	size := (n + k - 1) / k
	var g errgroup.Group
	for i := 0; i < k; i++ {
		i := i
		s := Span{Lo: min(i*size, n), Hi: min((i+1)*size, n)}
		g.Go(func() error {
			fn(i, s)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *parallel) Index(rgba []byte, pal palette.Palette) []byte {
	lookup := make(map[[3]uint8]uint8, len(pal))
	for i, c := range pal {
		if _, dup := lookup[c.RGB()]; !dup {
			lookup[c.RGB()] = uint8(i)
		}
	}

	out := make([]byte, len(rgba)/4)
	p.Spans(len(out), func(_ int, s Span) {
		for i := s.Lo; i < s.Hi; i++ {
			px := rgba[i*4 : i*4+4 : i*4+4]
			v, ok := lookup[[3]uint8{px[0], px[1], px[2]}]
			if px[3] == 0 || !ok {
				v = palette.Transparent
			}
			out[i] = v
		}
	})
	return out
}

func (p *parallel) Deindex(indices []byte, pal palette.Palette) []byte {
	var table [256][4]byte
	for i, c := range pal {
		if i < palette.Transparent {
			table[i] = [4]byte{c.R, c.G, c.B, 255}
		}
	}

	out := make([]byte, len(indices)*4)
	p.Spans(len(indices), func(_ int, s Span) {
		for i := s.Lo; i < s.Hi; i++ {
			copy(out[i*4:i*4+4], table[indices[i]][:])
		}
	})
	return out
}

// Unstylize splits work by rows of blocks. Each block is scanned with
// sub-slices of the image rows instead of recomputing positions per pixel.
func (p *parallel) Unstylize(img []byte, imageW, imageH, blockW, blockH int) []byte {
	w, h := imageW/blockW, imageH/blockH
	out := make([]byte, w*h)
	multi := blockW*blockH > 1

	p.Spans(h, func(_ int, s Span) {
		for by := s.Lo; by < s.Hi; by++ {
			top := by * blockH
			for bx := 0; bx < w; bx++ {
				left := bx * blockW
				v := byte(palette.Transparent)
			scan:
				for yy := 0; yy < blockH; yy++ {
					rowStart := (top+yy)*imageW + left
					row := img[rowStart : rowStart+blockW]
					if rowStart == 0 && multi {
						row = row[1:]
					}
					for _, c := range row {
						if c != palette.Transparent {
							v = c
							break scan
						}
					}
				}
				out[by*w+bx] = v
			}
		}
	})
	return out
}
