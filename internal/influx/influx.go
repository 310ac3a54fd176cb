// Package influx writes logged rows to InfluxDB 2.
package influx

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/datalog"
)

const Measurement = "propagator"

// Writer is a datalog exporter writing one point per row.
type Writer struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

func NewWriter(cfg config.Influx) *Writer {
	client := influxdb2.NewClient(cfg.Host, cfg.Token)
	log.Info().Str("host", cfg.Host).Str("bucket", cfg.Bucket).Msg("Influx exporter configured")
	return &Writer{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

func (w *Writer) Name() string { return "influx" }

func (w *Writer) Export(ctx context.Context, row datalog.LogRow) error {
	if err := w.write.WritePoint(ctx, NewPoint(row)); err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}

func (w *Writer) Close() {
	w.client.Close()
}

// ChannelFieldPrefix keeps channel fields apart from the derived fields,
// whatever the channels are called.
const ChannelFieldPrefix = "channel_"

// NewPoint has a field per measured channel, keyed by ChannelFieldPrefix
// plus the channel name, and whichever of setpoint, duty, air, min and max
// are known.
func NewPoint(row datalog.LogRow) *write.Point {
	fields := map[string]interface{}{
		"setpoint": row.Setpoint,
	}
	if row.Duty.Measured {
		fields["duty"] = row.Duty.Percent
	}
	if row.Air.OK() {
		fields["air"] = row.Air.Temperature
	}
	if row.BoundsSeeded {
		fields["min"] = row.Min
		fields["max"] = row.Max
	}
	for i, r := range row.Channels {
		if r.OK() && i < len(row.Names) {
			fields[ChannelFieldPrefix+row.Names[i]] = r.Temperature
		}
	}
	return influxdb2.NewPoint(Measurement, map[string]string{}, fields, row.Time)
}
