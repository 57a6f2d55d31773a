package canvas

import (
	"errors"
	"fmt"

	"pxlsync.dev/internal/protocol"
)

// ErrClosed is returned by Connect when Disconnect ends the attempt.
var ErrClosed = errors.New("canvas: client disconnected")

// PixelError reports a delta that could not be applied to the mirror.
type PixelError struct {
	Pixel  protocol.Pixel
	Reason string
}

func (e *PixelError) Error() string {
	return fmt.Sprintf("pixel (%d,%d) color %d rejected: %s", e.Pixel.X, e.Pixel.Y, e.Pixel.Color, e.Reason)
}
