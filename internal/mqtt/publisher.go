package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/datalog"
)

// Publisher is a datalog exporter backed by a paho client.
type Publisher struct {
	client paho.Client
	topic  string
}

var (
	newClient      = paho.NewClient
	connectTimeout = 10 * time.Second
)

// NewPublisher connects to the configured broker. A broker that cannot be
// reached in time leaves no client retrying in the background.
func NewPublisher(cfg config.MQTT) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	client := newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("MQTT exporter connected")
	return &Publisher{client: client, topic: cfg.Topic}, nil
}

func (p *Publisher) Name() string { return "mqtt" }

// Export publishes the row at QoS 0, not retained.
func (p *Publisher) Export(ctx context.Context, row datalog.LogRow) error {
	payload, err := FormatPayload(row)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
