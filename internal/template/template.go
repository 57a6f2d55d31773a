package template

import (
	"net/url"

	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/palette"
)

// Template is a design anchored at X, Y on a canvas. Templates are values:
// every method returns new data and leaves its inputs alone.
type Template struct {
	Design *Design
	X, Y   int
	Title  string
	Source *url.URL
}

func New(d *Design, x, y int) *Template {
	return &Template{Design: d, X: x, Y: y}
}

func (t *Template) Width() int  { return t.Design.Width }
func (t *Template) Height() int { return t.Design.Height }
func (t *Template) Size() int   { return t.Design.Size() }

// shift moves the 255 sentinel to 0 and every real index up by one.
func shift(data []uint8) []uint8 {
	var one uint8 = 1
	return accel.Add(data, one)
}

// Differences lists the design cells (as indices into the design) whose
// canvas color does not match. Transparent design cells never count.
func (t *Template) Differences(canvas *buffer.Buffer2D[uint8]) []uint32 {
	shadow := canvas.Crop(t.X, t.Y, t.Width(), t.Height(), palette.Transparent)
	design := shift(t.Design.Data)
	return accel.Diff(design, accel.Mask(shift(shadow.Data), design))
}

// PlaceableSize counts design cells the placemap currently allows.
func (t *Template) PlaceableSize(placemap *buffer.Buffer2D[uint8]) int {
	shadow := placemap.Crop(t.X, t.Y, t.Width(), t.Height(), palette.NoPlace)
	masked := accel.Mask(shift(t.Design.Data), shift(shadow.Data))
	return len(accel.Diff(masked, make([]uint8, len(masked))))
}

// Progress summarises a template against a canvas.
type Progress struct {
	Size      int
	Wrong     int
	Placeable int
}

func (p Progress) Done() int { return p.Size - p.Wrong }

// Percent is Done as a share of Size; an empty template is complete.
func (p Progress) Percent() float64 {
	if p.Size == 0 {
		return 100
	}
	return 100 * float64(p.Done()) / float64(p.Size)
}

// Progress measures the template. A nil placemap treats every cell as
// placeable.
func (t *Template) Progress(canvas, placemap *buffer.Buffer2D[uint8]) Progress {
	p := Progress{Size: t.Size(), Wrong: len(t.Differences(canvas)), Placeable: t.Size()}
	if placemap != nil {
		p.Placeable = t.PlaceableSize(placemap)
	}
	return p
}

func (t *Template) Redesigned(d *Design) *Template {
	c := *t
	c.Design = d
	return &c
}

func (t *Template) Repositioned(x, y int) *Template {
	c := *t
	c.X, c.Y = x, y
	return &c
}

func (t *Template) Retitled(title string) *Template {
	c := *t
	c.Title = title
	return &c
}

func (t *Template) Resourced(source *url.URL) *Template {
	c := *t
	c.Source = source
	return &c
}

// Equals compares position and design. Title and source are labels.
func (t *Template) Equals(other *Template) bool {
	return other != nil && t.X == other.X && t.Y == other.Y && t.Design.Equals(other.Design)
}
