// Package mqtt publishes logged rows to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/thatsimonsguy/propagator/internal/datalog"
)

// Payload is the JSON message published for each logged row.
type Payload struct {
	Timestamp string           `json:"timestamp"`
	Setpoint  float64          `json:"setpoint"`
	Duty      *int             `json:"duty"`
	Air       *float64         `json:"air"`
	Min       *float64         `json:"min"`
	Max       *float64         `json:"max"`
	Channels  []ChannelPayload `json:"channels"`
}

// ChannelPayload carries either a temperature or a fault.
type ChannelPayload struct {
	Name        string   `json:"name"`
	Temperature *float64 `json:"temperature,omitempty"`
	Fault       string   `json:"fault,omitempty"`
}

func FormatPayload(row datalog.LogRow) ([]byte, error) {
	p := Payload{
		Timestamp: row.Time.UTC().Format(time.RFC3339),
		Setpoint:  row.Setpoint,
		Channels:  make([]ChannelPayload, len(row.Channels)),
	}
	if row.Duty.Measured {
		duty := row.Duty.Percent
		p.Duty = &duty
	}
	if row.Air.OK() {
		air := row.Air.Temperature
		p.Air = &air
	}
	if row.BoundsSeeded {
		min, max := row.Min, row.Max
		p.Min, p.Max = &min, &max
	}
	for i, r := range row.Channels {
		if i < len(row.Names) {
			p.Channels[i].Name = row.Names[i]
		}
		switch {
		case r.OK():
			v := r.Temperature
			p.Channels[i].Temperature = &v
		case r.IsFault():
			p.Channels[i].Fault = r.Fault
		}
	}
	return json.Marshal(p)
}
