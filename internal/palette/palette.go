package palette

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Transparent is the reserved index meaning "no color".
const Transparent = 255

// NoPlace marks a placemap cell where placing is not allowed.
const NoPlace = 255

// MaxColors is the largest palette a canvas can announce; index 255 is reserved.
const MaxColors = 255

// Color is one server-declared palette entry.
type Color struct {
	Name    string
	R, G, B uint8
}

// ParseColor accepts "RRGGBB", "#RRGGBB", "RGB" and "#RGB".
func ParseColor(name, value string) (Color, error) {
	v := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(v) == 3 {
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	}
	if len(v) != 6 {
		return Color{}, fmt.Errorf("color %q: bad hex value %q", name, value)
	}
	raw, err := hex.DecodeString(v)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", name, err)
	}
	return Color{Name: name, R: raw[0], G: raw[1], B: raw[2]}, nil
}

func (c Color) RGB() [3]uint8 { return [3]uint8{c.R, c.G, c.B} }

func (c Color) Hex() string {
	return hex.EncodeToString([]byte{c.R, c.G, c.B})
}

// Palette is indexed by the byte stored in canvas cells.
type Palette []Color

// Valid reports whether index names a real color (the sentinel is not one).
func (p Palette) Valid(index int) bool {
	return index >= 0 && index < len(p) && index != Transparent
}

// Lookup returns the first entry with exactly this RGB value.
func (p Palette) Lookup(r, g, b uint8) (uint8, bool) {
	for i, c := range p {
		if c.R == r && c.G == g && c.B == b {
			return uint8(i), true
		}
	}
	return Transparent, false
}
