package template

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/accel"
	"pxlsync.dev/internal/palette"
	"pxlsync.dev/internal/raster"
)

// MaxImageBytes bounds a downloaded template image.
const MaxImageBytes = 32 << 20

// Loader downloads template images and turns them into designs. Decoded
// designs are cached per source, palette and width.
type Loader struct {
	http  *http.Client
	cache *ristretto.Cache[string, *Design]
	log   logrus.FieldLogger
}

// NewLoader caches up to cacheBytes of decoded designs. A nil client uses
// http.DefaultClient.
func NewLoader(hc *http.Client, cacheBytes int64, log logrus.FieldLogger) (*Loader, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cacheBytes <= 0 {
		cacheBytes = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Design]{
		NumCounters: 10000,
		MaxCost:     cacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("template cache: %w", err)
	}
	return &Loader{http: hc, cache: cache, log: log}, nil
}

func (l *Loader) Close() { l.cache.Close() }

func paletteKey(p palette.Palette) string {
	h := sha256.New()
	for _, c := range p {
		h.Write([]byte{c.R, c.G, c.B})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func cacheKey(source, pal string, width int) string {
	return source + "|" + pal + "|" + strconv.Itoa(width)
}

// Load fetches the template a link describes and indexes it against p.
func (l *Loader) Load(ctx context.Context, params *LinkParams, p palette.Palette) (*Template, error) {
	key := cacheKey(params.Source.String(), paletteKey(p), params.Width)
	log := l.log.WithField("template", params.Source.String())

	d, ok := l.cache.Get(key)
	if ok {
		log.Debug("template: cache hit")
	} else {
		img, err := l.fetch(ctx, params.Source.String())
		if err != nil {
			return nil, err
		}
		if d, err = Decode(bytes.NewReader(img), params.Width, p); err != nil {
			return nil, err
		}
		l.cache.Set(key, d, int64(len(d.Data))+1)
		l.cache.Wait()
		log.WithFields(logrus.Fields{"width": d.Width, "height": d.Height, "size": d.Size()}).
			Info("template: loaded")
	}
	return &Template{Design: d, X: params.X, Y: params.Y, Title: params.Title, Source: params.Source}, nil
}

func (l *Loader) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("template request: %w", err)
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch template %s: status %d", src, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	if len(body) > MaxImageBytes {
		return nil, fmt.Errorf("template %s is larger than %d bytes", src, MaxImageBytes)
	}
	return body, nil
}

// Decode reads a possibly stylized template image. width is the design width
// in cells; 0 or the image width means the image is not stylized. Blocks are
// square.
func Decode(r io.Reader, width int, p palette.Palette) (*Design, error) {
	rgba, w, h, err := raster.Decode(r)
	if err != nil {
		return nil, err
	}
	block := 1
	if width > 0 && width != w {
		if w%width != 0 {
			return nil, fmt.Errorf("template image width %d is not a multiple of %d", w, width)
		}
		block = w / width
		if h%block != 0 {
			return nil, fmt.Errorf("template image height %d is not a multiple of block %d", h, block)
		}
	}
	s, err := NewStylized(w/block, h/block, block, block, accel.Index(rgba, p))
	if err != nil {
		return nil, err
	}
	return s.Unstylize(), nil
}
