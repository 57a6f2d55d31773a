package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/canvas"
	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/palette"
)

const Version = 1

// Header is written as a plain JSON line ahead of the gob body so a dump can
// be identified without decoding it.
type Header struct {
	Version int    `json:"version"`
	Site    string `json:"site"`
	TakenAt int64  `json:"taken_at_ms"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

type ColorV1 struct {
	Name    string `json:"name"`
	R, G, B uint8
}

// SnapshotV1 is one point-in-time copy of a mirrored canvas.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Palette         []ColorV1 `json:"palette"`
	HeatmapCooldown float64   `json:"heatmap_cooldown"`
	MaxStacked      int       `json:"max_stacked"`
	CanvasCode      string    `json:"canvas_code,omitempty"`

	// Layers is keyed by canvas.Layer name.
	Layers map[string][]byte `json:"layers"`
}

// Mirror is what the canvas client hands out; *canvas.Client implements it.
type Mirror interface {
	Mirror() (*metadata.Metadata, map[canvas.Layer]*buffer.Buffer2D[uint8], bool)
}

// FromState builds a snapshot from metadata and layer copies.
func FromState(site string, meta *metadata.Metadata, layers map[canvas.Layer]*buffer.Buffer2D[uint8], at time.Time) SnapshotV1 {
	snap := SnapshotV1{
		Header: Header{
			Version: Version,
			Site:    site,
			TakenAt: at.UnixMilli(),
			Width:   meta.Width,
			Height:  meta.Height,
		},
		HeatmapCooldown: meta.HeatmapCooldown,
		MaxStacked:      meta.MaxStacked,
		CanvasCode:      meta.CanvasCode,
		Layers:          map[string][]byte{},
	}
	for _, c := range meta.Palette {
		snap.Palette = append(snap.Palette, ColorV1{Name: c.Name, R: c.R, G: c.G, B: c.B})
	}
	for l, b := range layers {
		snap.Layers[l.String()] = append([]byte(nil), b.Data...)
	}
	return snap
}

// Take snapshots a synced mirror.
func Take(m Mirror, site string, at time.Time) (SnapshotV1, error) {
	meta, layers, ok := m.Mirror()
	if !ok {
		return SnapshotV1{}, fmt.Errorf("snapshot: canvas not synced")
	}
	return FromState(site, meta, layers, at), nil
}

func (s SnapshotV1) Metadata() *metadata.Metadata {
	m := &metadata.Metadata{
		Width:           s.Header.Width,
		Height:          s.Header.Height,
		HeatmapCooldown: s.HeatmapCooldown,
		MaxStacked:      s.MaxStacked,
		CanvasCode:      s.CanvasCode,
	}
	for _, c := range s.Palette {
		m.Palette = append(m.Palette, palette.Color{Name: c.Name, R: c.R, G: c.G, B: c.B})
	}
	return m
}

func (s SnapshotV1) Layer(l canvas.Layer) (*buffer.Buffer2D[uint8], bool) {
	data, ok := s.Layers[l.String()]
	if !ok || len(data) != s.Header.Width*s.Header.Height {
		return nil, false
	}
	return buffer.New(s.Header.Width, s.Header.Height, append([]byte(nil), data...)), true
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := writeBody(enc, snap); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func writeBody(enc *zstd.Encoder, snap SnapshotV1) error {
	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 256*1024), func() { dec.Close(); f.Close() }, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	br, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	defer closeFn()
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	br, closeFn, err := open(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
