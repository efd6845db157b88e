package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discos/statuskit/errors"
	"github.com/discos/statuskit/namespace"
	"github.com/discos/statuskit/schema"
	"github.com/discos/statuskit/testutil"
)

func loadCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.Load("../schema/testdata/schemas")
	require.NoError(t, err)
	return cat
}

func startedClient(t *testing.T, topics []string, opts ...Option) (*Client, *testutil.Transport) {
	t.Helper()
	tr := testutil.NewTransport()
	tr.SnapshotFor("antenna", []byte(`{"status":"ok","timestamp":{"unix_time":100}}`))
	tr.SnapshotFor("weather", []byte(`{"wind":{"speed":3.2}}`))

	c, err := New(loadCatalog(t), tr, topics, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, tr
}

func TestNew_UnknownTopicIsFatal(t *testing.T) {
	c, err := New(loadCatalog(t), testutil.NewTransport(), []string{"bogus"})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, errors.ErrUnknownTopic)
	assert.True(t, errors.IsFatal(err))
}

func TestNew_EmptyTopicsSubscribesEverything(t *testing.T) {
	c, err := New(loadCatalog(t), testutil.NewTransport(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"antenna", "weather"}, c.Topics())
}

func TestStart_HandshakeAppliesSnapshot(t *testing.T) {
	c, tr := startedClient(t, []string{"antenna"})

	// The snapshot arrived on the prefixed channel and was merged.
	node, err := c.Get("antenna.timestamp.unix_time")
	require.NoError(t, err)
	assert.Equal(t, 100.0, node.Value())

	// Steady state: the plain topic is subscribed and the handshake
	// channel is gone.
	assert.Equal(t, []string{"antenna"}, tr.Subscriptions())

	history := tr.History()
	require.GreaterOrEqual(t, len(history), 3)
	assert.True(t, strings.HasPrefix(history[0], "subscribe "))
	assert.Contains(t, history[0], "_antenna")
	assert.Equal(t, "subscribe antenna", history[len(history)-1])
}

func TestStart_HandshakeTimeoutFallsBackToEagerTree(t *testing.T) {
	tr := testutil.NewTransport() // no snapshots registered

	c, err := New(loadCatalog(t), tr, []string{"antenna"},
		WithHandshakeTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, []string{"antenna"}, tr.Subscriptions())

	// The tree is the schema-initialized one, value still absent.
	node, err := c.Get("antenna.timestamp.unix_time")
	require.NoError(t, err)
	assert.False(t, node.HasValue())
}

func TestStart_SteadyStateTrafficDuringHandshake(t *testing.T) {
	tr := testutil.NewTransport()
	tr.SnapshotFor("antenna", []byte(`{"status":"ok"}`)) // no weather snapshot

	c, err := New(loadCatalog(t), tr, []string{"antenna", "weather"},
		WithHandshakeTimeout(400*time.Millisecond))
	require.NoError(t, err)

	// Publish a live update the moment antenna reaches steady state,
	// while weather's handshake is still waiting for its snapshot.
	go func() {
		for !tr.Subscribed("antenna") {
			time.Sleep(time.Millisecond)
		}
		tr.Publish("antenna", []byte(`{"status":"failure"}`))
	}()

	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	live, err := c.Node("antenna.status")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = live.Wait(ctx, func(n *namespace.Node) bool {
		return n.Value() == "failure"
	})
	require.NoError(t, err, "updates for a settled topic must merge while other handshakes run")
}

func TestDecodeUpdate(t *testing.T) {
	update, err := decodeUpdate([]byte(`{"status":"ok"}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", update["status"])

	for _, payload := range []string{`not json`, `[1,2]`, `"scalar"`} {
		_, err := decodeUpdate([]byte(payload))
		assert.ErrorIs(t, err, errors.ErrInvalidPayload, "payload %s", payload)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestReceiveLoop_MergesSteadyStateUpdates(t *testing.T) {
	c, tr := startedClient(t, []string{"antenna"})

	live, err := c.Node("antenna.timestamp.unix_time")
	require.NoError(t, err)

	tr.Publish("antenna", []byte(`{"timestamp":{"unix_time":200}}`))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = live.Wait(ctx, func(n *namespace.Node) bool {
		return n.Value() == 200.0
	})
	require.NoError(t, err)
}

func TestReceiveLoop_SurvivesMalformedMessages(t *testing.T) {
	c, tr := startedClient(t, []string{"antenna"})

	tr.Publish("antenna", []byte(`not json at all`))
	tr.Publish("antenna", []byte(`{"timestamp":"wrong shape"}`))
	tr.Publish("antenna", []byte(`{"timestamp":{"unix_time":300}}`))

	live, err := c.Node("antenna.timestamp.unix_time")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = live.Wait(ctx, func(n *namespace.Node) bool {
		return n.Value() == 300.0
	})
	require.NoError(t, err, "good messages after bad ones must still merge")
}

func TestGet_LookupErrors(t *testing.T) {
	c, _ := startedClient(t, []string{"antenna"})

	_, err := c.Get("weather")
	assert.ErrorIs(t, err, errors.ErrNotSubscribed, "catalog topic not requested")

	_, err = c.Get("bogus")
	assert.ErrorIs(t, err, errors.ErrUnknownTopic, "topic unknown to the catalog")

	_, err = c.Get("antenna.nonexistent")
	assert.ErrorIs(t, err, errors.ErrUnknownPath)
}

func TestGet_ReturnsDetachedCopy(t *testing.T) {
	c, tr := startedClient(t, []string{"antenna"})

	snapshot, err := c.Get("antenna.timestamp")
	require.NoError(t, err)

	tr.Publish("antenna", []byte(`{"timestamp":{"unix_time":999}}`))

	live, err := c.Node("antenna.timestamp.unix_time")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, live.Wait(ctx, func(n *namespace.Node) bool {
		return n.Value() == 999.0
	}))

	copied, ok := snapshot.Child("unix_time")
	require.True(t, ok)
	assert.Equal(t, 100.0, copied.Value(), "earlier copy must not track later merges")
}

func TestGetNext_ReturnsPostChangeCopy(t *testing.T) {
	c, tr := startedClient(t, []string{"antenna"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		node, err := c.GetNext(ctx, "antenna.status")
		assert.NoError(t, err)
		if err == nil {
			got, err := node.AsString()
			assert.NoError(t, err)
			assert.Equal(t, "failure", got)
		}
	}()

	// Give the waiter time to bind before publishing.
	time.Sleep(20 * time.Millisecond)
	tr.Publish("antenna", []byte(`{"status":"failure"}`))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("GetNext did not return")
	}
}

func TestGetNext_ContextCancellation(t *testing.T) {
	c, _ := startedClient(t, []string{"antenna"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.GetNext(ctx, "antenna.status")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRenderAll(t *testing.T) {
	c, _ := startedClient(t, []string{"antenna"})

	out, err := c.RenderAll("c")
	require.NoError(t, err)
	assert.Contains(t, out, `"antenna":`)
	assert.Contains(t, out, `"value":"ok"`)

	values, err := c.RenderAll("v")
	require.NoError(t, err)
	assert.Contains(t, values, `"unix_time":100`)

	indented, err := c.RenderAll("4i")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(indented, "{\n    \""))

	_, err = c.RenderAll("bogus")
	assert.ErrorIs(t, err, errors.ErrBadRenderSpec)
}

func TestClose_IsIdempotentAndStopsLoop(t *testing.T) {
	tr := testutil.NewTransport()
	tr.SnapshotFor("antenna", []byte(`{"status":"ok"}`))

	c, err := New(loadCatalog(t), tr, []string{"antenna"})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err = c.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrClosed)
}
