package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server bound to a random port.
func startTestNATSServer(t *testing.T) *server.Server {
	ns, err := server.NewServer(&server.Options{
		Host: "127.0.0.1",
		Port: -1,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server not ready")
	}
	return ns
}

func setupTestBus(t *testing.T) (*Bus, *server.Server) {
	ns := startTestNATSServer(t)
	b, err := Connect(Config{URL: ns.ClientURL(), Prefix: "test."})
	require.NoError(t, err)
	return b, ns
}

func TestConnect_DefaultPrefix(t *testing.T) {
	ns := startTestNATSServer(t)
	defer ns.Shutdown()

	b, err := Connect(Config{URL: ns.ClientURL()})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "arbot.", b.prefix)
}

func TestPublishSubscribe_RoundTrip(t *testing.T) {
	b, ns := setupTestBus(t)
	defer ns.Shutdown()
	defer b.Close()

	received := make(chan Event, 1)
	sub, err := b.Subscribe(SubjectSignalDetected, func(evt Event) error {
		received <- evt
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	payload := map[string]string{"symbol": "BTCUSDT", "strategy": "spatial"}
	b.Publish(SubjectSignalDetected, payload)

	select {
	case evt := <-received:
		assert.Equal(t, SubjectSignalDetected, evt.Subject)
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(evt.Payload, &decoded))
		assert.Equal(t, "BTCUSDT", decoded["symbol"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublishConnState(t *testing.T) {
	b, ns := setupTestBus(t)
	defer ns.Shutdown()
	defer b.Close()

	received := make(chan Event, 1)
	sub, err := b.Subscribe(SubjectConnState, func(evt Event) error {
		received <- evt
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	b.PublishConnState("binance", "Degraded")

	select {
	case evt := <-received:
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(evt.Payload, &decoded))
		assert.Equal(t, "binance", decoded["exchange"])
		assert.Equal(t, "Degraded", decoded["state"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connector state event")
	}
}

func TestPublish_DisconnectedIsNonBlocking(t *testing.T) {
	b, ns := setupTestBus(t)
	ns.Shutdown()
	defer b.Close()

	// Give the client a moment to notice the server is gone.
	time.Sleep(100 * time.Millisecond)

	assert.NotPanics(t, func() {
		b.Publish(SubjectRiskRejected, map[string]string{"reason": "max_exposure"})
	})
}

func TestClose_Idempotent(t *testing.T) {
	b, ns := setupTestBus(t)
	defer ns.Shutdown()

	b.Close()
	assert.NotPanics(t, func() { b.Close() })
}
