package canvas

import (
	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/palette"
	"pxlsync.dev/internal/protocol"
)

// Getters return copies. The bool is false until the first sync has filled
// the value in, or when the layer is not mirrored.

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Synced reports whether the current socket has finished its sync.
func (c *Client) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

func (c *Client) Metadata() (*metadata.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta, c.meta != nil
}

func (c *Client) Layer(l Layer) (*buffer.Buffer2D[uint8], bool) {
	if !l.valid() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.grids[l]
	if g == nil {
		return nil, false
	}
	return g.Clone(), true
}

func (c *Client) Canvas() (*buffer.Buffer2D[uint8], bool)    { return c.Layer(LayerCanvas) }
func (c *Client) Heatmap() (*buffer.Buffer2D[uint8], bool)   { return c.Layer(LayerHeatmap) }
func (c *Client) Placemap() (*buffer.Buffer2D[uint8], bool)  { return c.Layer(LayerPlacemap) }
func (c *Client) Virginmap() (*buffer.Buffer2D[uint8], bool) { return c.Layer(LayerVirginmap) }
func (c *Client) InitialCanvas() (*buffer.Buffer2D[uint8], bool) {
	return c.Layer(LayerInitialCanvas)
}

// Blank is the value a layer takes outside the canvas.
func (l Layer) Blank() uint8 {
	switch l {
	case LayerHeatmap, LayerVirginmap:
		return 0
	case LayerPlacemap:
		return palette.NoPlace
	}
	return palette.Transparent
}

// Crop cuts a w x h window out of a layer. Cells outside the canvas take the
// layer's Blank value.
func (c *Client) Crop(l Layer, x, y, w, h int) (*buffer.Buffer2D[uint8], bool) {
	if !l.valid() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.grids[l]
	if g == nil {
		return nil, false
	}
	return g.Crop(x, y, w, h, l.Blank()), true
}

// Mirror returns metadata and copies of every mirrored layer taken under one
// lock, so they describe the same instant.
func (c *Client) Mirror() (*metadata.Metadata, map[Layer]*buffer.Buffer2D[uint8], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta == nil {
		return nil, nil, false
	}
	out := map[Layer]*buffer.Buffer2D[uint8]{}
	for i, g := range c.grids {
		if g != nil {
			out[Layer(i)] = g.Clone()
		}
	}
	return c.meta, out, true
}

// RGBA renders the canvas layer as non-premultiplied RGBA.
func (c *Client) RGBA() ([]byte, bool) {
	c.mu.Lock()
	g, meta := c.grids[LayerCanvas], c.meta
	var data []byte
	if g != nil {
		data = append([]byte(nil), g.Data...)
	}
	c.mu.Unlock()
	if g == nil || meta == nil {
		return nil, false
	}
	return accel.Deindex(data, meta.Palette), true
}

func (c *Client) Users() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users, c.usersKnown
}

func (c *Client) Notifications() []protocol.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Notification(nil), c.notifications...)
}

// CurrentCooldown is the placement cooldown in seconds for the last known
// user count.
func (c *Client) CurrentCooldown() (float64, bool) {
	users, ok := c.Users()
	if !ok {
		return 0, false
	}
	return CooldownForUsers(users, c.opts.Cooldown), true
}

func (c *Client) CurrentCooldownForStack(available int) (float64, bool) {
	users, ok := c.Users()
	if !ok {
		return 0, false
	}
	return CooldownForStack(users, available, c.opts.Cooldown), true
}
