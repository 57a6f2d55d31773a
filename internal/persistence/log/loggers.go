package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"pxlsync.dev/internal/protocol"
)

// JSONLZstdWriter appends JSON lines to one zstd file per UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.w = f, enc, bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Entry is one journal line.
type Entry struct {
	Kind string                `json:"kind"`
	At   int64                 `json:"at_ms"`
	Chat *protocol.ChatMessage `json:"chat,omitempty"`
	// alert
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message,omitempty"`
}

// ChatLogger journals chat messages and alerts seen on a canvas socket.
type ChatLogger struct{ w *JSONLZstdWriter }

func NewChatLogger(dir string) *ChatLogger {
	return &ChatLogger{w: NewJSONLZstdWriter(dir, "chat")}
}

func (l *ChatLogger) WriteChat(m protocol.ChatMessage) error {
	return l.w.Write(Entry{Kind: "chat", At: l.w.now().UnixMilli(), Chat: &m})
}

func (l *ChatLogger) WriteAlert(sender, message string) error {
	return l.w.Write(Entry{Kind: "alert", At: l.w.now().UnixMilli(), Sender: sender, Message: message})
}

func (l *ChatLogger) Close() error { return l.w.Close() }
