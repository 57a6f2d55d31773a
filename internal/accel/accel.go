// Package accel holds the elementwise array primitives used on canvas-sized
// buffers: palette indexing, diffing, masking, wrapping arithmetic and
// stylized-template decoding.
//
// Two backends implement the primitives. The reference backend is scalar and
// always available; it defines the semantics. The parallel backend splits the
// work across goroutines and must produce bit-identical output. Callers use
// the package-level functions and never see which backend is active.
package accel

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/palette"
)

// ErrUnavailable is returned by Init when a backend cannot run on this host.
var ErrUnavailable = errors.New("accel: backend unavailable")

// Integer is the element constraint for buffer arithmetic.
type Integer interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// Span is a half-open index range [Lo, Hi).
type Span struct {
	Lo, Hi int
}

// Backend executes the primitives.
//
// Spans partitions [0, n) into NumSpans(n) contiguous spans in ascending
// order, calls fn once per span (possibly concurrently) and returns after all
// calls have finished. Elementwise kernels of every integer width run through
// it, so a backend only has to decide how work is scheduled.
type Backend interface {
	Name() string

	// Init probes whether the backend can run. Called once before use.
	Init() error

	NumSpans(n int) int
	Spans(n int, fn func(i int, s Span))

	Index(rgba []byte, p palette.Palette) []byte
	Deindex(indices []byte, p palette.Palette) []byte
	Unstylize(img []byte, imageW, imageH, blockW, blockH int) []byte
}

var (
	mu     sync.RWMutex
	active Backend

	logger logrus.FieldLogger = logrus.StandardLogger()
)

// SetLogger sets the logger used to report backend selection.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Active returns the backend in use, probing for one on first call: the
// parallel backend is tried first and the reference backend is used when the
// probe fails.
func Active() Backend {
	mu.RLock()
	b := active
	mu.RUnlock()
	if b != nil {
		return b
	}

	mu.Lock()
	defer mu.Unlock()
	if active == nil {
		active = probeLocked()
	}
	return active
}

func probeLocked() Backend {
	p := Parallel(0)
	if err := p.Init(); err != nil {
		logger.WithError(err).Warn("accel: falling back to reference backend")
		return Reference()
	}
	logger.WithField("backend", p.Name()).Info("accel: accelerated backend selected")
	return p
}

// Use forces a backend. Init is called first; on failure the active backend
// is left unchanged.
func Use(b Backend) error {
	if b == nil {
		return errors.New("accel: backend must not be nil")
	}
	if err := b.Init(); err != nil {
		return err
	}
	mu.Lock()
	active = b
	mu.Unlock()
	return nil
}

// Select resolves a configured backend name: "auto", "reference" or "parallel".
func Select(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		mu.Lock()
		defer mu.Unlock()
		return probeLocked(), nil
	case "reference":
		return Reference(), nil
	case "parallel":
		return Parallel(0), nil
	default:
		return nil, fmt.Errorf("accel: unknown backend %q", name)
	}
}
