//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	return container, "nats://" + host + ":" + port.Port()
}

func TestIntegration_Connect(t *testing.T) {
	ctx := context.Background()

	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	c, err := New(url)
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	assert.True(t, c.IsConnected())
	assert.Equal(t, StatusConnected, c.Status())
}

func TestIntegration_SubscribeReceive(t *testing.T) {
	ctx := context.Background()

	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	c, err := New(url)
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Subscribe("antenna"))

	// Publish through a separate raw connection, as a broker-side
	// publisher would.
	pub, err := nats.Connect(url)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish("antenna", []byte(`{"status":"ok"}`)))
	require.NoError(t, pub.Flush())

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	subject, payload, err := c.Receive(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "antenna", subject)
	assert.JSONEq(t, `{"status":"ok"}`, string(payload))
}

func TestIntegration_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()

	container, url := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	c, err := New(url)
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Subscribe("antenna"))
	require.NoError(t, c.Unsubscribe("antenna"))

	pub, err := nats.Connect(url)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish("antenna", []byte(`{"status":"ok"}`)))
	require.NoError(t, pub.Flush())

	recvCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	_, _, err = c.Receive(recvCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
