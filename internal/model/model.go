package model

import (
	"fmt"
	"strconv"
	"time"
)

type Units string

const (
	Celsius    Units = "c"
	Fahrenheit Units = "f"
)

type HeaterState string

const (
	HeaterOn       HeaterState = "On"
	HeaterOff      HeaterState = "Off"
	HeaterErrorOff HeaterState = "Error: Off"
)

// LogStatus values follow Off -> On -> StoppingRequested -> Off.
type LogStatus string

const (
	LogOff      LogStatus = "off"
	LogOn       LogStatus = "on"
	LogStopping LogStatus = "stopping"
)

type GPIOPin struct {
	Number     int
	ActiveHigh bool
}

type ChannelConfig struct {
	Name              string
	CSPin             int
	RelayPin          int
	CalibrationOffset float64
	MeasuredOffset    float64
}

// Calibrate applies the configured linear correction to a raw reading.
func (c ChannelConfig) Calibrate(raw float64) float64 {
	return raw + c.CalibrationOffset - c.MeasuredOffset
}

// TimeOfDay is an offset from midnight, date independent.
type TimeOfDay time.Duration

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond()))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

type ScheduleEntry struct {
	Time     TimeOfDay
	Setpoint float64
}

type ReadingKind int

const (
	ReadingPending ReadingKind = iota
	ReadingOK
	ReadingFault
)

// Reading is the result of one sensor read: a temperature or a fault, never both.
type Reading struct {
	Kind        ReadingKind
	Temperature float64
	Fault       string
}

func Measured(t float64) Reading {
	return Reading{Kind: ReadingOK, Temperature: t}
}

func Faulted(reason string) Reading {
	return Reading{Kind: ReadingFault, Fault: reason}
}

func (r Reading) OK() bool      { return r.Kind == ReadingOK }
func (r Reading) IsFault() bool { return r.Kind == ReadingFault }

// String renders the reading the way it is shown to users and written to CSV.
func (r Reading) String() string {
	switch r.Kind {
	case ReadingOK:
		return FormatTemperature(r.Temperature)
	case ReadingFault:
		return "Error: " + r.Fault
	default:
		return ""
	}
}

func FormatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'f', -1, 64)
}

type ChannelReading struct {
	Name    string
	Reading Reading
	Heater  HeaterState
}

// Session is one logging run as recorded in the session index. StoppedAt is
// zero while the session is open.
type Session struct {
	ID         int64     `json:"id"`
	File       string    `json:"file"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	Rows       int       `json:"rows"`
	StopReason string    `json:"stop_reason,omitempty"`
}
