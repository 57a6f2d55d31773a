package canvas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/protocol"
	"pxlsync.dev/internal/transport/ws"
)

const waitLimit = 5 * time.Second

// fakeConn is an in-memory socket. Frames pushed with send are returned by
// ReadMessage in order.
type fakeConn struct {
	frames      chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	answerPings bool

	mu       sync.Mutex
	pong     func()
	graceful bool
	pings    int
}

func newFakeConn(answerPings bool) *fakeConn {
	return &fakeConn{frames: make(chan []byte, 64), closed: make(chan struct{}), answerPings: answerPings}
}

func (f *fakeConn) send(raw string) { f.frames <- []byte(raw) }

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-f.closed:
		return nil, io.EOF
	default:
	}
	select {
	case b := <-f.frames:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) Ping(time.Time) error {
	f.mu.Lock()
	f.pings++
	pong := f.pong
	f.mu.Unlock()
	if f.answerPings && pong != nil {
		pong()
	}
	return nil
}

func (f *fakeConn) SetPongHandler(h func()) {
	f.mu.Lock()
	f.pong = h
	f.mu.Unlock()
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.graceful = true
	f.mu.Unlock()
	return f.Terminate()
}

func (f *fakeConn) Terminate() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu          sync.Mutex
	failures    int
	dials       int
	answerPings bool
	conns       chan *fakeConn
}

func newFakeDialer(failures int) *fakeDialer {
	return &fakeDialer{failures: failures, answerPings: true, conns: make(chan *fakeConn, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (ws.Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()
	if n <= d.failures {
		return nil, fmt.Errorf("dial %d: connection refused", n)
	}
	c := newFakeConn(d.answerPings)
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitLimit):
		t.Fatalf("no dial within %v", waitLimit)
		return nil
	}
}

type fakeFetcher struct {
	mu        sync.Mutex
	info      string
	notes     string
	layers    map[string][]byte
	gate      chan struct{}
	notesErr  error
	infoCalls int
}

func (f *fakeFetcher) JSON(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch path {
	case pathInfo:
		f.infoCalls++
		return []byte(f.info), nil
	case pathNotifications:
		if f.notesErr != nil {
			return nil, f.notesErr
		}
		if f.notes == "" {
			return []byte(`[]`), nil
		}
		return []byte(f.notes), nil
	}
	return nil, fmt.Errorf("GET %s: 404", path)
}

func (f *fakeFetcher) Raw(ctx context.Context, path string, size int) ([]byte, error) {
	f.mu.Lock()
	gate := f.gate
	data, ok := f.layers[path]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok || len(data) < size {
		return nil, fmt.Errorf("GET %s: short body", path)
	}
	return append([]byte(nil), data[:size]...), nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

func infoJSON(w, h int, heatmapCooldown float64) string {
	return fmt.Sprintf(`{"width":%d,"height":%d,
	  "palette":[{"name":"White","value":"FFFFFF"},{"name":"Black","value":"000000"}],
	  "heatmapCooldown":%g,"maxStacked":6,"canvasCode":"t","chatEnabled":false,
	  "chatCharacterLimit":0,"chatBannerText":[],"customEmoji":[]}`, w, h, heatmapCooldown)
}

// threeByOne is a 3x1 canvas [0,1,255] with matching auxiliary layers.
func threeByOne() *fakeFetcher {
	return &fakeFetcher{
		info: infoJSON(3, 1, 0),
		layers: map[string][]byte{
			"/boarddata":        {0, 1, 255},
			"/heatmap":          {0, 0, 0},
			"/placemap":         {0, 0, 255},
			"/virginmap":        {255, 255, 255},
			"/initialboarddata": {0, 1, 255},
		},
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestClient(t *testing.T, d *fakeDialer, f *fakeFetcher) *Client {
	t.Helper()
	opts := DefaultOptions()
	opts.BaseURL = "http://pxls.test"
	opts.ReconnectBackoff = 5 * time.Millisecond
	opts.HeartbeatInterval = time.Hour
	opts.Logger = quietLogger()
	opts.Dialer = d
	opts.Fetcher = f
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func record(c *Client) *recorder {
	r := &recorder{notify: make(chan struct{}, 1)}
	c.Subscribe(r.add)
	return r
}

func (r *recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) matching(pred func(Event) bool) []Event {
	var out []Event
	for _, e := range r.all() {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// waitN blocks until at least n recorded events satisfy pred.
func (r *recorder) waitN(t *testing.T, n int, pred func(Event) bool) []Event {
	t.Helper()
	deadline := time.After(waitLimit)
	for {
		if got := r.matching(pred); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("waited for %d events, have %d: %v", n, len(r.matching(pred)), r.all())
		}
	}
}

func isReady(e Event) bool        { _, ok := e.(ReadyEvent); return ok }
func isPixel(e Event) bool        { _, ok := e.(PixelEvent); return ok }
func isError(e Event) bool        { _, ok := e.(ErrorEvent); return ok }
func isDisconnect(e Event) bool   { _, ok := e.(DisconnectEvent); return ok }
func isUsers(e Event) bool        { _, ok := e.(UsersEvent); return ok }
func isNotification(e Event) bool { _, ok := e.(NotificationEvent); return ok }
func isSync(e Event) bool         { _, ok := e.(SyncEvent); return ok }

func connect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func canvasData(t *testing.T, c *Client) []uint8 {
	t.Helper()
	cv, ok := c.Canvas()
	if !ok {
		t.Fatalf("canvas not available")
	}
	return cv.Data
}

func TestPixelDelta_OldColorIsSentinel(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	rec := record(c)
	connect(t, c)
	conn := d.next(t)

	conn.send(`{"type":"pixel","pixels":[{"x":2,"y":0,"color":1}]}`)
	px := rec.waitN(t, 1, isPixel)[0].(PixelEvent)
	if px != (PixelEvent{X: 2, Y: 0, Color: 1, OldColor: 255}) {
		t.Fatalf("pixel event: got %+v", px)
	}
	if got := canvasData(t, c); !reflect.DeepEqual(got, []uint8{0, 1, 1}) {
		t.Fatalf("canvas: got %v want [0 1 1]", got)
	}
	heat, _ := c.Heatmap()
	virgin, _ := c.Virginmap()
	initial, _ := c.InitialCanvas()
	if heat.Data[2] != 255 || virgin.Data[2] != 0 {
		t.Fatalf("heat/virgin: got %v %v", heat.Data, virgin.Data)
	}
	if !reflect.DeepEqual(initial.Data, []uint8{0, 1, 255}) {
		t.Fatalf("initial canvas must not change: got %v", initial.Data)
	}
}

func TestPixelDelta_QueuedDuringSyncMatchesImmediate(t *testing.T) {
	frames := []string{
		`{"type":"pixel","pixels":[{"x":2,"y":0,"color":1}]}`,
		`{"type":"pixel","pixels":[{"x":0,"y":0,"color":-1},{"x":2,"y":0,"color":0}]}`,
	}

	// Immediate: deltas arrive after the sync.
	d1 := newFakeDialer(0)
	c1 := newTestClient(t, d1, threeByOne())
	rec1 := record(c1)
	connect(t, c1)
	conn1 := d1.next(t)
	for _, f := range frames {
		conn1.send(f)
	}
	rec1.waitN(t, 3, isPixel)
	want := canvasData(t, c1)

	// Queued: deltas arrive while the snapshot download is held back.
	f2 := threeByOne()
	f2.gate = make(chan struct{})
	f2.notes = `[{"id":1,"time":10,"who":"a","title":"backlog","content":"x"}]`
	d2 := newFakeDialer(0)
	c2 := newTestClient(t, d2, f2)
	rec2 := record(c2)
	connected := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
		defer cancel()
		connected <- c2.Connect(ctx)
	}()
	conn2 := d2.next(t)
	for _, f := range frames {
		conn2.send(f)
	}
	conn2.send(`{"type":"notification","notification":{"id":2,"time":11,"who":"b","title":"live","content":"y"}}`)

	deadline := time.Now().Add(waitLimit)
	for {
		c2.mu.Lock()
		n, notes := len(c2.pending), len(c2.pendingNotes)
		c2.mu.Unlock()
		if n == 3 && notes == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("deltas were not queued: pending=%d notes=%d", n, notes)
		}
		time.Sleep(time.Millisecond)
	}
	if len(rec2.matching(isPixel)) != 0 {
		t.Fatalf("queued deltas must not be applied before sync")
	}
	close(f2.gate)
	if err := <-connected; err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if got := canvasData(t, c2); !reflect.DeepEqual(got, want) {
		t.Fatalf("queued canvas %v != immediate canvas %v", got, want)
	}
	if !reflect.DeepEqual(want, []uint8{255, 1, 0}) {
		t.Fatalf("immediate canvas: got %v", want)
	}

	// Replayed pixel events come before the sync event, in arrival order.
	var order []string
	for _, e := range rec2.all() {
		switch ev := e.(type) {
		case PixelEvent:
			order = append(order, fmt.Sprintf("px%d=%d", ev.X, ev.Color))
		case SyncEvent:
			order = append(order, "sync")
		}
	}
	if want := []string{"px2=1", "px0=255", "px2=0", "sync"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("event order: got %v want %v", order, want)
	}

	notes := c2.Notifications()
	if len(notes) != 2 || notes[0].ID != 1 || notes[1].ID != 2 {
		t.Fatalf("notifications: got %+v", notes)
	}
	if len(rec2.matching(isNotification)) != 0 {
		t.Fatalf("queued notifications are merged, not announced")
	}
}

func TestPixelDelta_Rejected(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	rec := record(c)
	connect(t, c)
	conn := d.next(t)

	conn.send(`{"type":"pixel","pixels":[{"x":0,"y":0,"color":7},{"x":9,"y":0,"color":1},{"x":1,"y":0,"color":0}]}`)
	errs := rec.waitN(t, 2, isError)
	for _, e := range errs {
		var pe *PixelError
		if !errors.As(e.(ErrorEvent).Err, &pe) {
			t.Fatalf("error event: got %v want *PixelError", e.(ErrorEvent).Err)
		}
	}
	rec.waitN(t, 1, isPixel)
	if got := canvasData(t, c); !reflect.DeepEqual(got, []uint8{0, 0, 255}) {
		t.Fatalf("canvas: got %v want [0 0 255]", got)
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	rec := record(c)
	connect(t, c)
	conn := d.next(t)

	conn.send(`{"type":"pixel","pixels":"nope"}`)
	conn.send(`not json`)
	conn.send(`{"type":"future_thing","x":1}`)
	conn.send(`{"type":"users","count":42}`)

	rec.waitN(t, 1, isUsers)
	errs := rec.matching(isError)
	if len(errs) != 2 {
		t.Fatalf("error events: got %d want 2", len(errs))
	}
	var ve *protocol.ValidationError
	if !errors.As(errs[0].(ErrorEvent).Err, &ve) {
		t.Fatalf("error: got %v want *protocol.ValidationError", errs[0].(ErrorEvent).Err)
	}
	if n, ok := c.Users(); !ok || n != 42 {
		t.Fatalf("Users: got %d, %v", n, ok)
	}
	if conn.isClosed() || c.State() != StateOpen {
		t.Fatalf("connection should stay open, state %v", c.State())
	}
	if len(rec.matching(isDisconnect)) != 0 {
		t.Fatalf("unexpected disconnect")
	}
}

func TestReconnect_ThreeFailedOpensThenSuccess(t *testing.T) {
	d := newFakeDialer(3)
	f := threeByOne()
	c := newTestClient(t, d, f)
	rec := record(c)
	connect(t, c)

	if got := d.dialCount(); got != 4 {
		t.Fatalf("dials: got %d want 4", got)
	}
	if got := len(rec.matching(isReady)); got != 1 {
		t.Fatalf("ready events: got %d want 1", got)
	}
	if got := len(rec.matching(isSync)); got != 1 {
		t.Fatalf("sync events: got %d want 1", got)
	}
	if got := f.calls(); got != 1 {
		t.Fatalf("metadata fetches: got %d want 1", got)
	}
	if got := canvasData(t, c); !reflect.DeepEqual(got, []uint8{0, 1, 255}) {
		t.Fatalf("canvas: got %v", got)
	}
	if len(rec.matching(isDisconnect)) != 0 {
		t.Fatalf("failed dials must not surface as disconnects")
	}
}

func TestSocketClose_ReconnectsAndResyncs(t *testing.T) {
	d := newFakeDialer(0)
	f := threeByOne()
	c := newTestClient(t, d, f)
	rec := record(c)
	connect(t, c)
	first := d.next(t)

	first.send(`{"type":"pixel","pixels":[{"x":2,"y":0,"color":1}]}`)
	rec.waitN(t, 1, isPixel)
	_ = first.Terminate()

	rec.waitN(t, 1, isDisconnect)
	rec.waitN(t, 2, isReady)
	d.next(t)
	if got := f.calls(); got != 2 {
		t.Fatalf("metadata fetches: got %d want 2", got)
	}
	// The fresh snapshot replaces the locally patched canvas.
	if got := canvasData(t, c); !reflect.DeepEqual(got, []uint8{0, 1, 255}) {
		t.Fatalf("canvas after resync: got %v", got)
	}
}

func TestHeartbeat_TerminatesSilentSocket(t *testing.T) {
	d := newFakeDialer(0)
	d.answerPings = false
	opts := DefaultOptions()
	opts.BaseURL = "http://pxls.test"
	opts.ReconnectBackoff = 5 * time.Millisecond
	opts.HeartbeatInterval = 10 * time.Millisecond
	opts.HeartbeatSlack = 5 * time.Millisecond
	opts.Logger = quietLogger()
	opts.Dialer = d
	opts.Fetcher = threeByOne()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Disconnect()
	rec := record(c)
	connect(t, c)
	first := d.next(t)

	rec.waitN(t, 1, isDisconnect)
	if !first.isClosed() {
		t.Fatalf("silent socket should be terminated")
	}
	first.mu.Lock()
	graceful := first.graceful
	first.mu.Unlock()
	if graceful {
		t.Fatalf("heartbeat timeout should terminate, not close gracefully")
	}
	rec.waitN(t, 2, isReady)
}

func TestHeartbeat_PongKeepsSocket(t *testing.T) {
	d := newFakeDialer(0)
	opts := DefaultOptions()
	opts.BaseURL = "http://pxls.test"
	opts.HeartbeatInterval = 5 * time.Millisecond
	opts.HeartbeatSlack = 5 * time.Millisecond
	opts.Logger = quietLogger()
	opts.Dialer = d
	opts.Fetcher = threeByOne()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Disconnect()
	rec := record(c)
	connect(t, c)
	conn := d.next(t)

	deadline := time.Now().Add(waitLimit)
	for {
		conn.mu.Lock()
		pings := conn.pings
		conn.mu.Unlock()
		if pings >= 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d pings sent", pings)
		}
		time.Sleep(time.Millisecond)
	}
	if conn.isClosed() || len(rec.matching(isDisconnect)) != 0 {
		t.Fatalf("answered pings must keep the socket open")
	}
}

func TestDisconnect_IdempotentAndFinal(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	c.Disconnect() // never connected

	rec := record(c)
	connect(t, c)
	conn := d.next(t)

	c.Disconnect()
	c.Disconnect()
	if !conn.isClosed() {
		t.Fatalf("socket should be closed")
	}
	conn.mu.Lock()
	graceful := conn.graceful
	conn.mu.Unlock()
	if !graceful {
		t.Fatalf("Disconnect should close gracefully")
	}
	if c.State() != StateDisconnected || c.Synced() {
		t.Fatalf("state after disconnect: %v synced=%v", c.State(), c.Synced())
	}
	disc := rec.matching(isDisconnect)
	if len(disc) != 1 || disc[0].(DisconnectEvent).Err != nil {
		t.Fatalf("disconnect events: got %v", disc)
	}

	before := len(rec.all())
	conn.send(`{"type":"pixel","pixels":[{"x":2,"y":0,"color":1}]}`)
	time.Sleep(10 * time.Millisecond)
	if len(rec.all()) != before {
		t.Fatalf("no events after disconnect")
	}
	if got := canvasData(t, c); !reflect.DeepEqual(got, []uint8{0, 1, 255}) {
		t.Fatalf("canvas mutated after disconnect: %v", got)
	}

	// The client can be started again.
	connect(t, c)
	d.next(t)
	rec.waitN(t, 2, isReady)
}

func TestConnect_AbortedByDisconnect(t *testing.T) {
	d := newFakeDialer(1 << 30)
	c := newTestClient(t, d, threeByOne())
	c.opts.ReconnectBackoff = time.Hour

	errc := make(chan error, 1)
	go func() { errc <- c.Connect(context.Background()) }()
	for d.dialCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Disconnect()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Connect: got %v want ErrClosed", err)
		}
	case <-time.After(waitLimit):
		t.Fatalf("Connect did not return after Disconnect")
	}
}

func TestConnect_ContextCanceled(t *testing.T) {
	d := newFakeDialer(1 << 30)
	c := newTestClient(t, d, threeByOne())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Connect(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Connect: got %v want deadline exceeded", err)
	}
}

func TestNotificationBacklogFailureStillSyncs(t *testing.T) {
	cases := map[string]func(*fakeFetcher){
		"non-array body": func(f *fakeFetcher) { f.notes = `{"error":"not found"}` },
		"http error":     func(f *fakeFetcher) { f.notesErr = fmt.Errorf("GET %s: 404", pathNotifications) },
	}
	for name, broken := range cases {
		t.Run(name, func(t *testing.T) {
			f := threeByOne()
			broken(f)
			f.gate = make(chan struct{})
			d := newFakeDialer(0)
			c := newTestClient(t, d, f)
			rec := record(c)
			connected := make(chan error, 1)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
				defer cancel()
				connected <- c.Connect(ctx)
			}()
			conn := d.next(t)
			conn.send(`{"type":"notification","notification":{"id":7,"time":11,"who":"b","title":"live","content":"y"}}`)
			deadline := time.Now().Add(waitLimit)
			for {
				c.mu.Lock()
				n := len(c.pendingNotes)
				c.mu.Unlock()
				if n == 1 {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("live notification was not queued")
				}
				time.Sleep(time.Millisecond)
			}
			close(f.gate)
			if err := <-connected; err != nil {
				t.Fatalf("Connect: %v", err)
			}

			if got := canvasData(t, c); !reflect.DeepEqual(got, []uint8{0, 1, 255}) {
				t.Fatalf("canvas: got %v", got)
			}
			rec.waitN(t, 1, isReady)
			if len(rec.matching(isError)) != 1 {
				t.Fatalf("expected one error event, got %v", rec.all())
			}
			if notes := c.Notifications(); len(notes) != 1 || notes[0].ID != 7 {
				t.Fatalf("notifications: got %+v", notes)
			}
			if f.calls() != 1 {
				t.Fatalf("sync retried: %d metadata fetches", f.calls())
			}
		})
	}
}

func TestBadMetadataIsRetried(t *testing.T) {
	d := newFakeDialer(0)
	f := threeByOne()
	good := f.info
	f.info = `{"width":0}`
	c := newTestClient(t, d, f)
	rec := record(c)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
		defer cancel()
		_ = c.Connect(ctx)
	}()
	rec.waitN(t, 1, isError)
	f.mu.Lock()
	f.info = good
	f.mu.Unlock()
	rec.waitN(t, 1, isReady)

	var ve *protocol.ValidationError
	if !errors.As(rec.matching(isError)[0].(ErrorEvent).Err, &ve) || ve.Object != "Metadata" {
		t.Fatalf("expected a Metadata validation error, got %v", rec.matching(isError)[0])
	}
}

func TestHeatmapDecay(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	rec := record(c)
	connect(t, c)
	conn := d.next(t)

	conn.send(`{"type":"pixel","pixels":[{"x":1,"y":0,"color":0}]}`)
	rec.waitN(t, 1, isPixel)

	for i := 1; i <= 255; i++ {
		c.decayHeatmap()
		heat, _ := c.Heatmap()
		if want := uint8(255 - i); heat.Data[1] != want {
			t.Fatalf("after %d ticks: got %d want %d", i, heat.Data[1], want)
		}
		if heat.Data[0] != 0 {
			t.Fatalf("cold cell changed: %d", heat.Data[0])
		}
	}
	c.decayHeatmap()
	if heat, _ := c.Heatmap(); heat.Data[1] != 0 {
		t.Fatalf("heat must not go below zero: %d", heat.Data[1])
	}
}

func TestHeatmapDecay_Ticker(t *testing.T) {
	d := newFakeDialer(0)
	f := threeByOne()
	f.info = infoJSON(3, 1, 0.256) // 1ms per tick
	f.layers["/heatmap"] = []byte{255, 3, 0}
	c := newTestClient(t, d, f)
	connect(t, c)

	deadline := time.Now().Add(waitLimit)
	for {
		heat, _ := c.Heatmap()
		if reflect.DeepEqual(heat.Data, []uint8{0, 0, 0}) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("heatmap did not cool down: %v", heat.Data)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLayerSubset(t *testing.T) {
	d := newFakeDialer(0)
	opts := DefaultOptions()
	opts.BaseURL = "http://pxls.test"
	opts.Layers = []Layer{LayerCanvas}
	opts.Logger = quietLogger()
	opts.Dialer = d
	opts.Fetcher = threeByOne()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Disconnect()
	rec := record(c)
	connect(t, c)
	d.next(t).send(`{"type":"pixel","pixels":[{"x":0,"y":0,"color":1}]}`)
	rec.waitN(t, 1, isPixel)

	if _, ok := c.Heatmap(); ok {
		t.Fatalf("heatmap is not mirrored")
	}
	se := rec.matching(isSync)[0].(SyncEvent)
	if len(se.Layers) != 1 || se.Layers[LayerCanvas] == nil {
		t.Fatalf("sync layers: got %v", se.Layers)
	}
	rgba, ok := c.RGBA()
	if !ok || !reflect.DeepEqual(rgba[:4], []byte{0, 0, 0, 255}) || rgba[11] != 0 {
		t.Fatalf("RGBA: got %v", rgba)
	}
}

func TestGettersBeforeSync(t *testing.T) {
	c := newTestClient(t, newFakeDialer(0), threeByOne())
	if _, ok := c.Canvas(); ok {
		t.Fatalf("canvas before sync")
	}
	if _, ok := c.Metadata(); ok {
		t.Fatalf("metadata before sync")
	}
	if _, ok := c.Users(); ok {
		t.Fatalf("users before first users frame")
	}
	if _, ok := c.CurrentCooldown(); ok {
		t.Fatalf("cooldown without user count")
	}
	if _, ok := c.Crop(LayerCanvas, 0, 0, 1, 1); ok {
		t.Fatalf("crop before sync")
	}
	if c.State() != StateDisconnected || c.Synced() {
		t.Fatalf("fresh client state: %v", c.State())
	}
}

func TestCropUsesLayerBlank(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	connect(t, c)
	cv, _ := c.Crop(LayerCanvas, 2, 0, 2, 1)
	pm, _ := c.Crop(LayerPlacemap, -1, 0, 2, 1)
	hm, _ := c.Crop(LayerHeatmap, 2, 0, 2, 1)
	if !reflect.DeepEqual(cv.Data, []uint8{255, 255}) ||
		!reflect.DeepEqual(pm.Data, []uint8{255, 0}) ||
		!reflect.DeepEqual(hm.Data, []uint8{0, 0}) {
		t.Fatalf("crops: %v %v %v", cv.Data, pm.Data, hm.Data)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	var mu sync.Mutex
	count := 0
	unsubscribe := c.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsubscribe()
	connect(t, c)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("unsubscribed handler saw %d events", count)
	}
}


func TestSubscriberMayReadState(t *testing.T) {
	d := newFakeDialer(0)
	c := newTestClient(t, d, threeByOne())
	var seen []uint8
	var mu sync.Mutex
	c.Subscribe(func(e Event) {
		if _, ok := e.(PixelEvent); !ok {
			return
		}
		cv, ok := c.Canvas()
		if !ok {
			return
		}
		mu.Lock()
		seen = cv.Data
		mu.Unlock()
	})
	rec := record(c)
	connect(t, c)
	conn := d.next(t)
	for i := 0; i < 40; i++ {
		conn.send(fmt.Sprintf(`{"type":"pixel","pixels":[{"x":%d,"y":0,"color":%d}]}`, i%3, i%2))
	}
	rec.waitN(t, 40, isPixel)
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, canvasData(t, c)) {
		t.Fatalf("last read %v, canvas %v", seen, canvasData(t, c))
	}
}
