package datadog

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/propagator/internal/config"
)

func TestGauge_DisabledIsNoop(t *testing.T) {
	InitMetrics(config.Metrics{})
	assert.Nil(t, dogstatsd)
	Gauge("setpoint", 20)
	Close()
}

func TestGauge_SendsToAgent(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	InitMetrics(config.Metrics{StatsdAddr: conn.LocalAddr().String(), Namespace: "propagator."})
	require.NotNil(t, dogstatsd)

	Gauge("channel.temperature", 21.5, "channel:Tray 1")
	Close()

	buf := make([]byte, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	payload := string(buf[:n])
	assert.Contains(t, payload, "propagator.channel.temperature:21.5|g")
	assert.Contains(t, payload, "channel:Tray 1")
}
