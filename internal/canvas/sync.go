package canvas

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/palette"
	"pxlsync.dev/internal/protocol"
)

const (
	pathInfo          = "/info"
	pathNotifications = "/notifications"
)

type backlog struct {
	notes []protocol.Notification
	err   error
}

// sync replaces metadata and every enabled layer with a fresh snapshot, then
// replays the deltas that arrived on the socket in the meantime. Deltas keep
// queueing until the replay is done, so the result is the snapshot plus every
// delta received since the snapshot was requested.
func (c *Client) sync(ctx context.Context, log logrus.FieldLogger) error {
	notesCh := make(chan backlog, 1)
	go func() {
		raw, err := c.opts.Fetcher.JSON(ctx, pathNotifications)
		if err != nil {
			notesCh <- backlog{err: fmt.Errorf("fetch notifications: %w", err)}
			return
		}
		notes, err := protocol.DecodeNotifications(raw)
		notesCh <- backlog{notes: notes, err: err}
	}()

	raw, err := c.opts.Fetcher.JSON(ctx, pathInfo)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}
	meta, err := metadata.Parse(raw, c.base)
	if err != nil {
		log.WithError(err).Error("canvas: bad metadata")
		c.emit(ErrorEvent{Err: err})
		return err
	}

	var grids [numLayers]*buffer.Buffer2D[uint8]
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range c.layers.list() {
		l := l
		g.Go(func() error {
			data, err := c.opts.Fetcher.Raw(gctx, l.Path(), meta.Size())
			if err != nil {
				return fmt.Errorf("fetch %s: %w", l, err)
			}
			grids[l] = buffer.New(meta.Width, meta.Height, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var notes []protocol.Notification
	select {
	case b := <-notesCh:
		if b.err != nil {
			// The canvas is still usable without the backlog.
			log.WithError(b.err).Warn("canvas: notifications backlog unavailable")
			c.emit(ErrorEvent{Err: b.err})
		} else {
			notes = b.notes
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.meta = meta
	c.grids = grids
	c.notifications = append(notes, c.pendingNotes...)
	c.pendingNotes = nil

	events := make([]Event, 0, len(c.pending)+1)
	for _, p := range c.pending {
		events = c.applyPixelLocked(p, events)
	}
	replayed := len(c.pending)
	c.pending = nil
	c.synced = true

	snap := SyncEvent{Metadata: meta, Layers: map[Layer]*buffer.Buffer2D[uint8]{}}
	for _, l := range c.layers.list() {
		snap.Layers[l] = c.grids[l].Clone()
	}
	events = append(events, snap)
	c.commitLocked(events...)

	log.WithFields(logrus.Fields{
		"width":    meta.Width,
		"height":   meta.Height,
		"replayed": replayed,
		"backlog":  len(notes),
	}).Info("canvas: synced")

	c.restartDecay(meta.HeatmapDecayPeriod())
	return nil
}

// applyPixelLocked applies one delta to the mirror. c.mu must be held and the
// client synced. Resulting events are appended to events.
func (c *Client) applyPixelLocked(p protocol.Pixel, events []Event) []Event {
	reject := func(reason string) []Event {
		err := &PixelError{Pixel: p, Reason: reason}
		c.log.WithError(err).Error("canvas: rejected pixel")
		return append(events, ErrorEvent{Err: err})
	}
	if p.Color != palette.Transparent && !c.meta.Palette.Valid(p.Color) {
		return reject(fmt.Sprintf("color outside palette of %d", len(c.meta.Palette)))
	}
	if p.X < 0 || p.Y < 0 || p.X >= c.meta.Width || p.Y >= c.meta.Height {
		return reject(fmt.Sprintf("outside %dx%d canvas", c.meta.Width, c.meta.Height))
	}

	i := p.X + p.Y*c.meta.Width
	color := uint8(p.Color)
	if heat := c.grids[LayerHeatmap]; heat != nil {
		heat.Data[i] = 255
	}
	if virgin := c.grids[LayerVirginmap]; virgin != nil {
		virgin.Data[i] = 0
	}
	if cv := c.grids[LayerCanvas]; cv != nil {
		events = append(events, PixelEvent{X: p.X, Y: p.Y, Color: color, OldColor: cv.Data[i]})
		cv.Data[i] = color
	}
	return events
}

// decayHeatmap lowers every non-zero heatmap cell by one.
func (c *Client) decayHeatmap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	heat := c.grids[LayerHeatmap]
	if heat == nil {
		return
	}
	var one uint8 = 1
	heat.Data = accel.Mask(accel.Add(heat.Data, -one), heat.Data)
}

func (c *Client) restartDecay(period time.Duration) {
	c.stopDecay()
	if period <= 0 || !c.layers.has(LayerHeatmap) {
		return
	}
	stop := make(chan struct{})
	c.decayStop = stop
	c.decayWG.Add(1)
	go func() {
		defer c.decayWG.Done()
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.decayHeatmap()
			}
		}
	}()
}

func (c *Client) stopDecay() {
	if c.decayStop == nil {
		return
	}
	close(c.decayStop)
	c.decayStop = nil
	c.decayWG.Wait()
}
