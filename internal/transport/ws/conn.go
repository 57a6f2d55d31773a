package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	// Server frames are small JSON objects; anything larger is not ours.
	readLimit = 1 << 20
)

// Conn is one live socket to the canvas server. ReadMessage is called from a
// single reader goroutine; Ping, Close and Terminate may be called from any
// goroutine.
type Conn interface {
	ReadMessage() ([]byte, error)
	Ping(deadline time.Time) error
	// SetPongHandler must be called before the first ReadMessage.
	SetPongHandler(func())
	// Close sends a close frame and releases the connection.
	Close() error
	// Terminate drops the connection without a close handshake.
	Terminate() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// URLFor maps a site base URL onto its socket endpoint: http -> ws,
// https -> wss, path /ws.
func URLFor(base *url.URL) string {
	u := *base
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

type gorillaDialer struct {
	d websocket.Dialer
}

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer() Dialer {
	return &gorillaDialer{d: websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   64 * 1024,
		WriteBufferSize:  4 * 1024,
	}}
}

func (g *gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := g.d.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &gorillaConn{conn: conn}, nil
}

type gorillaConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

func (c *gorillaConn) ReadMessage() ([]byte, error) {
	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return msg, nil
		}
	}
}

func (c *gorillaConn) Ping(deadline time.Time) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *gorillaConn) SetPongHandler(f func()) {
	c.conn.SetPongHandler(func(string) error {
		if f != nil {
			f()
		}
		return nil
	})
}

func (c *gorillaConn) Close() error {
	c.closeOnce.Do(func() {
		err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			c.closeErr = err
		}
		if cerr := c.conn.Close(); c.closeErr == nil {
			c.closeErr = cerr
		}
	})
	return c.closeErr
}

func (c *gorillaConn) Terminate() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		c.closeErr = err
	})
	return err
}

// IsClosed reports whether err is the normal end of a socket rather than a
// transport fault.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
