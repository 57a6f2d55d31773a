package canvas

import (
	"sort"

	"pxlsync.dev/internal/buffer"
	"pxlsync.dev/internal/metadata"
	"pxlsync.dev/internal/protocol"
)

// Event is delivered to subscribers in the order the client's state changed.
type Event interface {
	eventName() string
}

// ReadyEvent follows every successful sync.
type ReadyEvent struct{}

// DisconnectEvent reports the end of a socket. Err is nil for a close the
// client asked for.
type DisconnectEvent struct {
	Err error
}

// ErrorEvent reports a dropped frame or rejected delta. The connection stays up.
type ErrorEvent struct {
	Err error
}

type PixelEvent struct {
	X, Y     int
	Color    uint8
	OldColor uint8
}

type UsersEvent struct {
	Count int
}

// SyncEvent carries the fresh metadata and copies of the synced layers.
type SyncEvent struct {
	Metadata *metadata.Metadata
	Layers   map[Layer]*buffer.Buffer2D[uint8]
}

type AlertEvent struct {
	Sender  string
	Message string
}

type NotificationEvent struct {
	Notification protocol.Notification
}

type ChatMessageEvent struct {
	Message protocol.ChatMessage
}

func (ReadyEvent) eventName() string        { return "ready" }
func (DisconnectEvent) eventName() string   { return "disconnect" }
func (ErrorEvent) eventName() string        { return "error" }
func (PixelEvent) eventName() string        { return "pixel" }
func (UsersEvent) eventName() string        { return "users" }
func (SyncEvent) eventName() string         { return "sync" }
func (AlertEvent) eventName() string        { return "alert" }
func (NotificationEvent) eventName() string { return "notification" }
func (ChatMessageEvent) eventName() string  { return "chatmessage" }

// EventName is the short name used in logs.
func EventName(e Event) string { return e.eventName() }

// Subscribe registers f for every event and returns a function removing it.
// Handlers run on the client's goroutines one at a time, in the order the
// changes were made. They may call the getters, which can already reflect
// later changes, but must not block for long or call Disconnect.
func (c *Client) Subscribe(f func(Event)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = f
	c.subsMu.Unlock()
	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

func (c *Client) handlers() []func(Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), len(ids))
	for i, id := range ids {
		out[i] = c.subs[id]
	}
	return out
}

// commitLocked queues events behind everything committed before, releases
// c.mu and delivers the queue.
func (c *Client) commitLocked(events ...Event) {
	if len(events) == 0 {
		c.mu.Unlock()
		return
	}
	c.outbox = append(c.outbox, events...)
	c.mu.Unlock()
	c.flush()
}

// emit delivers events that are not tied to a state change.
func (c *Client) emit(events ...Event) {
	c.mu.Lock()
	c.commitLocked(events...)
}

// flush drains the outbox. Whoever holds emitMu delivers for everyone, so
// c.mu is never held while waiting for emitMu.
func (c *Client) flush() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for {
		c.mu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		c.dispatch(batch)
	}
}

func (c *Client) dispatch(events []Event) {
	hs := c.handlers()
	for _, e := range events {
		for _, h := range hs {
			h(e)
		}
	}
}
