package datalog

import (
	"math"
	"strconv"
	"time"

	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/state"
)

const (
	TimestampFormat = "02/01/2006 15:04"
	FileTimeFormat  = "2006-01-02-15-04"
	FileSuffix      = "_temperature_log.csv"
	NoMeasurements  = "No measurements"
)

// DutyCycle is the share of control ticks with the heater on. Measured is
// false when no tick was counted.
type DutyCycle struct {
	Percent  int
	Measured bool
}

func Duty(on, off int) DutyCycle {
	if on+off == 0 {
		return DutyCycle{}
	}
	return DutyCycle{
		Percent:  int(math.Round(100 * float64(on) / float64(on+off))),
		Measured: true,
	}
}

func (d DutyCycle) String() string {
	if !d.Measured {
		return NoMeasurements
	}
	return strconv.Itoa(d.Percent)
}

// LogRow is one logging interval.
type LogRow struct {
	Time         time.Time
	Setpoint     float64
	Names        []string
	Channels     []model.Reading
	Duty         DutyCycle
	Air          model.Reading
	Min          float64
	Max          float64
	BoundsSeeded bool
}

// NewRow builds a row from a flushed snapshot.
func NewRow(now time.Time, snap state.Snapshot) LogRow {
	row := LogRow{
		Time:         now,
		Setpoint:     snap.Setpoint,
		Duty:         Duty(snap.OnTicks, snap.OffTicks),
		Air:          snap.Air,
		Min:          snap.Min,
		Max:          snap.Max,
		BoundsSeeded: snap.BoundsSeeded,
	}
	for _, ch := range snap.Channels {
		row.Names = append(row.Names, ch.Name)
		row.Channels = append(row.Channels, ch.Reading)
	}
	return row
}

func Header(names []string) []string {
	h := []string{"Date-Time", "Set Temp"}
	h = append(h, names...)
	return append(h, "Heating Active (%)", "Air Temp", "Min Temp", "Max Temp")
}

// Record renders the row in header column order.
func (r LogRow) Record() []string {
	rec := []string{r.Time.Format(TimestampFormat), model.FormatTemperature(r.Setpoint)}
	for _, c := range r.Channels {
		rec = append(rec, c.String())
	}
	rec = append(rec, r.Duty.String(), r.Air.String())
	if r.BoundsSeeded {
		return append(rec, model.FormatTemperature(r.Min), model.FormatTemperature(r.Max))
	}
	return append(rec, "", "")
}

// FileName is the session file name for a session started at t.
func FileName(t time.Time) string {
	return t.Format(FileTimeFormat) + FileSuffix
}
