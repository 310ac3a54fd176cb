package mqtt

import (
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/propagator/internal/config"
)

type recordingClient struct {
	paho.Client

	mu           sync.Mutex
	disconnected bool
}

func (c *recordingClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	c.Client.Disconnect(quiesce)
}

func TestNewPublisher_UnreachableBrokerStopsRetrying(t *testing.T) {
	var client *recordingClient
	origClient, origTimeout := newClient, connectTimeout
	newClient = func(o *paho.ClientOptions) paho.Client {
		client = &recordingClient{Client: paho.NewClient(o)}
		return client
	}
	connectTimeout = 100 * time.Millisecond
	t.Cleanup(func() {
		newClient = origClient
		connectTimeout = origTimeout
	})

	p, err := NewPublisher(config.MQTT{Broker: "tcp://127.0.0.1:1", Topic: "propagator/log", ClientID: "propagator-test"})
	require.Error(t, err)
	assert.Nil(t, p)

	require.NotNil(t, client)
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.True(t, client.disconnected, "failed client left retrying")
}
