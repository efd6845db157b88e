package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/discos/statuskit/errors"
)

// Message is one delivered (channel, payload) pair.
type Message struct {
	Channel string
	Payload []byte
}

// Transport is a scripted in-memory broker implementing the client's
// Transport interface. It honors the handshake convention: when a
// channel named `<token>_<topic>` is subscribed and a snapshot was
// registered for that topic, the snapshot is delivered on that channel
// immediately.
type Transport struct {
	mu         sync.Mutex
	subscribed map[string]bool
	snapshots  map[string][]byte
	history    []string

	msgs   chan Message
	closed chan struct{}
	once   sync.Once
}

// NewTransport creates a scripted transport with a buffered delivery
// queue.
func NewTransport() *Transport {
	return &Transport{
		subscribed: make(map[string]bool),
		snapshots:  make(map[string][]byte),
		msgs:       make(chan Message, 64),
		closed:     make(chan struct{}),
	}
}

// SnapshotFor registers the full snapshot a publisher would send in
// response to a new handshake subscription for topic.
func (t *Transport) SnapshotFor(topic string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[topic] = payload
}

// Subscribe registers interest in a channel and, for handshake channels
// with a registered snapshot, enqueues that snapshot.
func (t *Transport) Subscribe(channel string) error {
	if t.isClosed() {
		return errors.ErrClosed
	}

	t.mu.Lock()
	t.subscribed[channel] = true
	t.history = append(t.history, "subscribe "+channel)

	var snapshot []byte
	if i := strings.LastIndex(channel, "_"); i >= 0 {
		snapshot = t.snapshots[channel[i+1:]]
	}
	t.mu.Unlock()

	if snapshot != nil {
		t.msgs <- Message{Channel: channel, Payload: snapshot}
	}
	return nil
}

// Unsubscribe removes interest in a channel.
func (t *Transport) Unsubscribe(channel string) error {
	if t.isClosed() {
		return errors.ErrClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribed, channel)
	t.history = append(t.history, "unsubscribe "+channel)
	return nil
}

// Publish delivers a message to the queue if the channel is currently
// subscribed, mimicking broker-side filtering.
func (t *Transport) Publish(channel string, payload []byte) {
	t.mu.Lock()
	wanted := t.subscribed[channel]
	t.mu.Unlock()

	if !wanted || t.isClosed() {
		return
	}
	t.msgs <- Message{Channel: channel, Payload: payload}
}

// Receive blocks for the next delivered message.
func (t *Transport) Receive(ctx context.Context) (string, []byte, error) {
	select {
	case <-t.closed:
		return "", nil, errors.ErrClosed
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case msg := <-t.msgs:
		return msg.Channel, msg.Payload, nil
	}
}

// Close shuts the transport; pending and future Receive calls return
// ErrClosed.
func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// Subscribed reports whether a channel is currently subscribed.
func (t *Transport) Subscribed(channel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribed[channel]
}

// Subscriptions returns the currently subscribed channels, sorted.
func (t *Transport) Subscriptions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.subscribed))
	for channel := range t.subscribed {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// History returns the ordered subscribe/unsubscribe operations seen so
// far.
func (t *Transport) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.history...)
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}
