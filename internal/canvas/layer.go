package canvas

import (
	"fmt"
	"strings"
)

// Layer is one of the per-cell grids the server exposes for a canvas.
type Layer int

const (
	LayerCanvas Layer = iota
	LayerHeatmap
	LayerPlacemap
	LayerVirginmap
	LayerInitialCanvas

	numLayers
)

// AllLayers lists every layer in sync order.
func AllLayers() []Layer {
	return []Layer{LayerCanvas, LayerHeatmap, LayerPlacemap, LayerVirginmap, LayerInitialCanvas}
}

var layerNames = [numLayers]string{
	LayerCanvas:        "canvas",
	LayerHeatmap:       "heatmap",
	LayerPlacemap:      "placemap",
	LayerVirginmap:     "virginmap",
	LayerInitialCanvas: "initialcanvas",
}

var layerPaths = [numLayers]string{
	LayerCanvas:        "/boarddata",
	LayerHeatmap:       "/heatmap",
	LayerPlacemap:      "/placemap",
	LayerVirginmap:     "/virginmap",
	LayerInitialCanvas: "/initialboarddata",
}

func (l Layer) valid() bool { return l >= 0 && l < numLayers }

func (l Layer) String() string {
	if !l.valid() {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// Path is the REST endpoint serving the layer's raw snapshot.
func (l Layer) Path() string {
	if !l.valid() {
		return ""
	}
	return layerPaths[l]
}

func ParseLayer(s string) (Layer, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "initial_canvas", "initial":
		return LayerInitialCanvas, nil
	}
	for i, name := range layerNames {
		if name == s {
			return Layer(i), nil
		}
	}
	return 0, fmt.Errorf("unknown layer %q", s)
}

// layerSet is a fixed-size membership set over the known layers.
type layerSet [numLayers]bool

func newLayerSet(ls []Layer) layerSet {
	var s layerSet
	for _, l := range ls {
		if l.valid() {
			s[l] = true
		}
	}
	return s
}

func (s layerSet) has(l Layer) bool { return l.valid() && s[l] }

func (s layerSet) list() []Layer {
	var out []Layer
	for i, ok := range s {
		if ok {
			out = append(out, Layer(i))
		}
	}
	return out
}
