package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/discos/statuskit/errors"
	"github.com/discos/statuskit/metric"
	"github.com/discos/statuskit/namespace"
	"github.com/discos/statuskit/schema"
)

const defaultHandshakeTimeout = 5 * time.Second

// Client owns one live namespace tree per subscribed topic. It performs
// the handshake subscription on Start, runs the background receive loop
// for its lifetime, and answers path queries from any goroutine. The set
// of subscribed topics is fixed at construction.
type Client struct {
	catalog   *schema.Catalog
	transport Transport
	logger    *slog.Logger
	metrics   *metric.Metrics

	token            string
	trees            map[string]*namespace.Tree
	handshakeTimeout time.Duration
	warnLimit        *rate.Limiter

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
	closeErr error
}

// New builds a client for the given topics. An empty topic list
// subscribes to every topic in the catalog. Unknown topics are a fatal
// configuration error. The transport must already be connected; the
// client takes ownership of it and closes it on Close.
func New(catalog *schema.Catalog, transport Transport, topics []string, opts ...Option) (*Client, error) {
	c := &Client{
		catalog:          catalog,
		transport:        transport,
		logger:           slog.Default(),
		token:            uuid.NewString(),
		trees:            make(map[string]*namespace.Tree),
		handshakeTimeout: defaultHandshakeTimeout,
		warnLimit:        rate.NewLimiter(rate.Every(time.Second), 5),
		done:             make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "New", "apply option")
		}
	}

	if len(topics) == 0 {
		topics = catalog.Topics()
	}
	for _, topic := range topics {
		frag, ok := catalog.Schema(topic)
		if !ok {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %q", errors.ErrUnknownTopic, topic),
				"Client", "New", "validate requested topics")
		}
		c.trees[topic] = namespace.NewTree(topic, frag, catalog.Matcher())
	}

	return c, nil
}

// Start performs the handshake subscription for every topic and launches
// the background receive loop. It must be called exactly once; the loop
// runs until ctx is cancelled or the client is closed.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("client already started"),
			"Client", "Start", "check state")
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.handshake(loopCtx); err != nil {
		cancel()
		close(c.done)
		return err
	}

	go c.receiveLoop(loopCtx)
	return nil
}

// handshake subscribes every topic on its token-prefixed channel, waits
// for the one guaranteed snapshot per topic, applies it, then swaps each
// topic over to its plain channel. Topics whose snapshot does not arrive
// within the handshake timeout start from the eager tree.
func (c *Client) handshake(ctx context.Context) error {
	pending := make(map[string]string, len(c.trees)) // handshake channel -> topic
	for topic := range c.trees {
		channel := c.handshakeChannel(topic)
		if err := c.transport.Subscribe(channel); err != nil {
			return errors.Wrap(err, "Client", "handshake", "subscribe handshake channel")
		}
		pending[channel] = topic
	}

	hsCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	for len(pending) > 0 {
		channel, payload, err := c.transport.Receive(hsCtx)
		if err != nil {
			if errors.IsTransient(err) && hsCtx.Err() == nil {
				continue
			}
			break
		}

		topic, ok := pending[channel]
		if !ok {
			if _, live := c.trees[channel]; live {
				// A topic that already swapped to its plain channel keeps
				// publishing while the remaining handshakes finish; its
				// updates merge as in steady state.
				c.dispatch(channel, payload)
			} else {
				c.warn("unexpected message during handshake", "channel", channel)
			}
			continue
		}

		update, decodeErr := decodeUpdate(payload)
		if decodeErr != nil {
			c.warn("handshake snapshot is not a JSON object", "topic", topic, "error", decodeErr)
			c.metrics.Dropped("decode")
		} else if _, mergeErr := c.trees[topic].Apply(update); mergeErr != nil {
			c.warn("handshake snapshot merge failed", "topic", topic, "error", mergeErr)
		}

		if err := c.steadyState(channel, topic); err != nil {
			return err
		}
		delete(pending, channel)
		c.logger.Debug("handshake complete", "topic", topic)
	}

	// Whatever is still pending timed out: fall back to the eager tree.
	for channel, topic := range pending {
		c.logger.Warn("handshake snapshot timed out, starting from schema defaults",
			"topic", topic, "timeout", c.handshakeTimeout)
		c.metrics.HandshakeFallback(topic)
		if err := c.steadyState(channel, topic); err != nil {
			return err
		}
	}

	return ctx.Err()
}

// steadyState swaps a topic from its handshake channel to the plain one.
func (c *Client) steadyState(handshakeChannel, topic string) error {
	if err := c.transport.Unsubscribe(handshakeChannel); err != nil {
		return errors.Wrap(err, "Client", "handshake", "unsubscribe handshake channel")
	}
	if err := c.transport.Subscribe(topic); err != nil {
		return errors.Wrap(err, "Client", "handshake", "subscribe topic")
	}
	return nil
}

func (c *Client) handshakeChannel(topic string) string {
	return c.token + "_" + topic
}

// receiveLoop decodes and merges incoming updates until the context is
// cancelled or the transport reports a non-transient failure. One
// malformed message never stops the loop.
func (c *Client) receiveLoop(ctx context.Context) {
	defer close(c.done)

	for {
		channel, payload, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errors.ErrClosed) {
				return
			}
			if errors.IsTransient(err) {
				continue
			}
			c.logger.Error("receive loop stopping on transport failure", "error", err)
			return
		}
		c.dispatch(channel, payload)
	}
}

func (c *Client) dispatch(topic string, payload []byte) {
	tree, ok := c.trees[topic]
	if !ok {
		c.warn("message for unsubscribed channel", "channel", topic)
		c.metrics.Dropped("unknown_topic")
		return
	}
	c.metrics.Received(topic)

	update, err := decodeUpdate(payload)
	if err != nil {
		c.warn("dropping undecodable message", "topic", topic, "error", err)
		c.metrics.Dropped("decode")
		return
	}

	changed, err := tree.Apply(update)
	if err != nil {
		// Merge errors are per-field: unaffected siblings were applied.
		c.warn("partial merge", "topic", topic, "error", err)
		c.metrics.Dropped("shape")
	}
	c.metrics.Merged(topic, changed)
	if changed {
		c.metrics.Notified(topic)
	}
}

// decodeUpdate parses a wire payload. Status documents are always JSON
// objects; anything else is ErrInvalidPayload.
func decodeUpdate(payload []byte) (map[string]any, error) {
	var update map[string]any
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return update, nil
}

// Get resolves a dotted path and returns a deep, detached copy of the
// node's current state. The first segment is the topic; the remainder
// names nested fields, with numeric segments indexing arrays. A topic
// the catalog knows but this client did not subscribe to reports
// ErrNotSubscribed; a topic the catalog has never heard of reports
// ErrUnknownTopic.
func (c *Client) Get(path string) (*namespace.Node, error) {
	node, err := c.Node(path)
	if err != nil {
		return nil, err
	}
	return node.Copy(), nil
}

// GetNext blocks until the node at path next changes, then returns the
// post-change copy. Cancellation returns ctx.Err().
func (c *Client) GetNext(ctx context.Context, path string) (*namespace.Node, error) {
	node, err := c.Node(path)
	if err != nil {
		return nil, err
	}

	changed := make(chan struct{}, 1)
	sub := node.Bind(func(*namespace.Node) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer node.Unbind(sub)

	select {
	case <-changed:
		return node.Copy(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Node resolves a dotted path to the live node. Most callers want Get;
// the live handle is for Bind and Wait.
func (c *Client) Node(path string) (*namespace.Node, error) {
	segments := strings.Split(path, ".")
	topic := segments[0]

	tree, ok := c.trees[topic]
	if !ok {
		if c.catalog.HasTopic(topic) {
			return nil, fmt.Errorf("%w: %q", errors.ErrNotSubscribed, topic)
		}
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownTopic, topic)
	}

	node := tree.Root()
	for _, segment := range segments[1:] {
		switch node.Kind() {
		case namespace.KindArray:
			i, err := strconv.Atoi(segment)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an array index", errors.ErrUnknownPath, segment)
			}
			elem, ok := node.At(i)
			if !ok {
				return nil, fmt.Errorf("%w: index %d out of range at %q", errors.ErrUnknownPath, i, path)
			}
			node = elem
		default:
			child, ok := node.Child(segment)
			if !ok {
				return nil, fmt.Errorf("%w: %q in %q", errors.ErrUnknownPath, segment, path)
			}
			node = child
		}
	}
	return node, nil
}

// Topics returns the subscribed topic names, sorted.
func (c *Client) Topics() []string {
	out := make([]string, 0, len(c.trees))
	for topic := range c.trees {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// Render renders one topic's tree with the given specifier.
func (c *Client) Render(topic, spec string) (string, error) {
	tree, ok := c.trees[topic]
	if !ok {
		if c.catalog.HasTopic(topic) {
			return "", fmt.Errorf("%w: %q", errors.ErrNotSubscribed, topic)
		}
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownTopic, topic)
	}
	return tree.Root().Render(spec)
}

// RenderAll renders every subscribed topic into one JSON object keyed by
// topic name, honoring the same specifiers as Node.Render.
func (c *Client) RenderAll(spec string) (string, error) {
	innerSpec := "c"
	switch spec {
	case "v", "m":
		innerSpec = spec
	}

	doc := make(map[string]json.RawMessage, len(c.trees))
	for topic, tree := range c.trees {
		// Combine compact per-topic documents, then indent the whole
		// thing once so the output nests correctly.
		out, err := tree.Root().Render(innerSpec)
		if err != nil {
			return "", err
		}
		doc[topic] = json.RawMessage(out)
	}

	combined, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "Client", "RenderAll", "encode combined document")
	}

	switch {
	case spec == "c" || spec == "v" || spec == "m":
		return string(combined), nil
	case strings.HasSuffix(spec, "i"):
		width := 2
		if digits := strings.TrimSuffix(spec, "i"); digits != "" {
			w, err := strconv.Atoi(digits)
			if err != nil || w <= 0 {
				return "", fmt.Errorf("%w: %q", errors.ErrBadRenderSpec, spec)
			}
			width = w
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, combined, "", strings.Repeat(" ", width)); err != nil {
			return "", errors.Wrap(err, "Client", "RenderAll", "indent combined document")
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrBadRenderSpec, spec)
	}
}

// Close stops the receive loop, unsubscribes every topic and closes the
// transport. It is idempotent and safe on every exit path.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.closed = true
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-c.done
	}

	var errs []error
	for topic := range c.trees {
		if err := c.transport.Unsubscribe(topic); err != nil && !stderrors.Is(err, errors.ErrClosed) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe topic"))
		}
	}
	if err := c.transport.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "Client", "Close", "close transport"))
	}

	c.mu.Lock()
	c.closeErr = stderrors.Join(errs...)
	err := c.closeErr
	c.mu.Unlock()
	return err
}

func (c *Client) warn(msg string, args ...any) {
	if c.warnLimit.Allow() {
		c.logger.Warn(msg, args...)
	}
}
