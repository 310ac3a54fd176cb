package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultServer = "https://ntfy.sh"

// Client publishes messages to an ntfy topic.
type Client struct {
	http   *http.Client
	server string
	topic  string
}

// New returns nil when topic is empty; a nil *Client drops every message.
func New(server, topic string) *Client {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if server == "" {
		server = DefaultServer
	}

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")

	return &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		server: server,
		topic:  topic,
	}
}

// Send publishes a notification using ntfy's JSON publishing endpoint.
func (c *Client) Send(title, message string) error {
	if c == nil {
		return nil
	}

	payload := map[string]interface{}{
		"topic":   c.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", c.server, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}
