package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/protocol"
	"pxlsync.dev/internal/transport/ws"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Client mirrors one canvas: a socket delivering deltas and a REST snapshot
// taken after every (re)connect.
type Client struct {
	opts   Options
	base   *url.URL
	wsURL  string
	layers layerSet
	id     uuid.UUID
	log    logrus.FieldLogger

	// lifecycle; one supervisor goroutine per Connect..Disconnect span
	lifeMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	ready  chan struct{}

	mu            sync.Mutex
	state         State
	synced        bool
	meta          *metadata.Metadata
	grids         [numLayers]*buffer.Buffer2D[uint8]
	users         int
	usersKnown    bool
	notifications []protocol.Notification
	pending       []protocol.Pixel
	pendingNotes  []protocol.Notification
	conn          ws.Conn
	outbox        []Event

	// owned by the supervisor goroutine
	decayStop chan struct{}
	decayWG   sync.WaitGroup

	emitMu  sync.Mutex
	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func New(opts Options) (*Client, error) {
	base, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	return &Client{
		opts:   opts,
		base:   base,
		wsURL:  ws.URLFor(base),
		layers: newLayerSet(opts.Layers),
		id:     id,
		log: opts.Logger.WithFields(logrus.Fields{
			"client": id.String(),
			"site":   base.Host,
		}),
		subs: map[int]func(Event){},
	}, nil
}

func (c *Client) ID() string        { return c.id.String() }
func (c *Client) BaseURL() *url.URL { u := *c.base; return &u }

// Layers reports which layers this client mirrors.
func (c *Client) Layers() []Layer { return c.layers.list() }

// Connect starts the client, if it is not running, and waits for the first
// successful sync. A canceled ctx stops the wait, not the client; the client
// keeps reconnecting until Disconnect. Connect returns ErrClosed if
// Disconnect is called first.
func (c *Client) Connect(ctx context.Context) error {
	c.lifeMu.Lock()
	if c.stop == nil {
		prev := c.done
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		c.ready = make(chan struct{})
		go c.run(prev, c.stop, c.done, c.ready)
	}
	stop, ready := c.stop, c.ready
	c.lifeMu.Unlock()

	select {
	case <-ready:
		return nil
	case <-stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the socket and waits for every client goroutine to exit.
// The mirrored layers keep their last state and are not mutated afterwards.
// Calling it again, or on a client that never connected, is a no-op.
func (c *Client) Disconnect() {
	c.lifeMu.Lock()
	stop, done := c.stop, c.done
	c.stop = nil
	c.lifeMu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

func (c *Client) run(prev <-chan struct{}, stop <-chan struct{}, done, ready chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		c.stopDecay()
		c.mu.Lock()
		c.state = StateDisconnected
		c.synced = false
		c.conn = nil
		c.mu.Unlock()
	}()

	var readyOnce sync.Once
	markReady := func() { readyOnce.Do(func() { close(ready) }) }

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		log := c.log.WithField("attempt", attempt)
		err := c.session(ctx, log, markReady)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// The socket ended after a good sync: reconnect right away.
			attempt = 0
			continue
		}

		log.WithError(err).WithField("backoff", c.opts.ReconnectBackoff).Warn("canvas: connect failed")
		t := time.NewTimer(c.opts.ReconnectBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session runs one socket from dial to close. It returns nil when a synced
// socket ends and an error when the dial or the sync fails.
func (c *Client) session(ctx context.Context, log logrus.FieldLogger, onReady func()) error {
	c.mu.Lock()
	c.state = StateConnecting
	c.synced = false
	c.pending = nil
	c.pendingNotes = nil
	c.mu.Unlock()

	log.Debugf("canvas: dialing %s", c.wsURL)
	conn, err := c.opts.Dialer.Dial(ctx, c.wsURL)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pong := make(chan struct{}, 1)
	conn.SetPongHandler(func() {
		select {
		case pong <- struct{}{}:
		default:
		}
	})

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	log.Debug("canvas: socket open")

	readErr := make(chan error, 1)
	go func() {
		err := c.readLoop(conn)
		cancel()
		readErr <- err
	}()

	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		c.heartbeat(sctx, conn, pong, log)
	}()

	var rerr error
	readDone := false
	finish := func(userClose bool) error {
		if userClose {
			c.mu.Lock()
			c.state = StateClosing
			c.mu.Unlock()
			_ = conn.Close()
		} else {
			_ = conn.Terminate()
		}
		if !readDone {
			rerr = <-readErr
		}
		cancel()
		hb.Wait()

		c.mu.Lock()
		c.conn = nil
		c.synced = false
		c.state = StateDisconnected
		c.mu.Unlock()

		if userClose || ws.IsClosed(rerr) {
			rerr = nil
		}
		c.emit(DisconnectEvent{Err: rerr})
		return rerr
	}

	if err := c.sync(sctx, log); err != nil {
		userClose := ctx.Err() != nil
		if closeErr := finish(userClose); !userClose && errors.Is(err, context.Canceled) {
			err = fmt.Errorf("socket ended during sync: %v", closeErr)
		}
		return fmt.Errorf("sync: %w", err)
	}

	log.Info("canvas: ready")
	c.emit(ReadyEvent{})
	onReady()

	select {
	case rerr = <-readErr:
		readDone = true
		log.WithError(rerr).Info("canvas: socket closed")
		_ = finish(false)
		return nil
	case <-ctx.Done():
		_ = finish(true)
		return nil
	}
}

func (c *Client) readLoop(conn ws.Conn) error {
	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(raw)
	}
}

// heartbeat pings every interval and terminates the socket when no pong
// arrives within interval+slack.
func (c *Client) heartbeat(ctx context.Context, conn ws.Conn, pong <-chan struct{}, log logrus.FieldLogger) {
	interval := c.opts.HeartbeatInterval
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		select {
		case <-pong:
		default:
		}
		if err := conn.Ping(time.Now().Add(interval)); err != nil {
			log.WithError(err).Warn("canvas: ping failed")
			_ = conn.Terminate()
			return
		}

		timeout := time.NewTimer(interval + c.opts.HeartbeatSlack)
		select {
		case <-ctx.Done():
			timeout.Stop()
			return
		case <-pong:
			timeout.Stop()
		case <-timeout.C:
			log.Warn("canvas: heartbeat timed out, terminating socket")
			_ = conn.Terminate()
			return
		}
	}
}

func (c *Client) handleFrame(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		c.log.WithError(err).Error("canvas: dropped frame")
		c.emit(ErrorEvent{Err: err})
		return
	}

	switch m := msg.(type) {
	case *protocol.PixelsMsg:
		c.mu.Lock()
		var events []Event
		for _, p := range m.Pixels {
			p = p.Normalized()
			if !c.synced {
				c.pending = append(c.pending, p)
				continue
			}
			events = c.applyPixelLocked(p, events)
		}
		c.commitLocked(events...)

	case *protocol.UsersMsg:
		c.mu.Lock()
		c.users = m.Count
		c.usersKnown = true
		c.commitLocked(UsersEvent{Count: m.Count})

	case *protocol.AlertMsg:
		c.emit(AlertEvent{Sender: m.Sender, Message: m.Message})

	case *protocol.NotificationMsg:
		c.mu.Lock()
		if !c.synced {
			c.pendingNotes = append(c.pendingNotes, m.Notification)
			c.commitLocked()
			return
		}
		c.notifications = append(c.notifications, m.Notification)
		c.commitLocked(NotificationEvent{Notification: m.Notification})

	case *protocol.ChatMessageMsg:
		c.emit(ChatMessageEvent{Message: m.Message})
	}
}
