package config

import (
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/propagator/internal/model"
)

const (
	DefaultControlInterval = 10 * time.Second
	DefaultPort            = 5000
	DefaultLogDir          = "logging"
	DefaultMQTTTopic       = "propagator/log"
)

type Hardware struct {
	ClockPin        int
	DataPin         int
	Backend         string // "rpio" or "gpiocdev"
	Chip            string // gpiocdev chip name
	RelayActiveHigh bool
	SafeMode        bool
	VerifyPins      bool
	BootScript      string // optional pinctrl script parking relays at boot
	BootService     string // optional systemd unit path running BootScript
}

type Metrics struct {
	StatsdAddr string
	Namespace  string
	Tags       []string
}

type MQTT struct {
	Broker   string
	Topic    string
	ClientID string
}

type Influx struct {
	Host   string
	Token  string
	Org    string
	Bucket string
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string
	Host       string
	Port       int

	Hardware        Hardware
	Channels        []model.ChannelConfig
	Units           model.Units
	Title           string
	LogInterval     time.Duration
	ControlInterval time.Duration
	LogDir          string
	Database        string
	Schedule        []model.ScheduleEntry

	Metrics   Metrics
	MQTT      MQTT
	Influx    Influx
	NtfyTopic string
}

// Error reports every problem found in a configuration document.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// RelayPins returns every relay pin in channel order.
func (cfg *Config) RelayPins() []model.GPIOPin {
	pins := make([]model.GPIOPin, len(cfg.Channels))
	for i := range cfg.Channels {
		pins[i] = cfg.RelayPin(i)
	}
	return pins
}

// RelayPin returns the relay pin of channel i with the board polarity applied.
func (cfg *Config) RelayPin(i int) model.GPIOPin {
	return model.GPIOPin{Number: cfg.Channels[i].RelayPin, ActiveHigh: cfg.Hardware.RelayActiveHigh}
}

func (cfg *Config) ChannelNames() []string {
	names := make([]string, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		names[i] = ch.Name
	}
	return names
}

// Load parses process flags and the configuration document. Any problem is fatal.
func Load() Config {
	var (
		configFile string
		logLevel   string
		logFile    string
		host       string
		port       int
		debug      bool
	)

	baseDir := programDir()

	flag.StringVar(&configFile, "config", filepath.Join(baseDir, "config.xml"), "Path to the XML configuration file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
	flag.StringVar(&host, "host", "0.0.0.0", "Web listener host")
	flag.IntVar(&port, "port", DefaultPort, "Web listener port")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	file, err := os.Open(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	cfg, err := Decode(file, baseDir)
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.ConfigFile = configFile
	cfg.LogLevel = parseLogLevel(logLevel)
	if debug {
		cfg.LogLevel = zerolog.DebugLevel
	}
	cfg.LogFile = logFile
	cfg.Host = host
	cfg.Port = port
	return cfg
}

// Decode reads an XML configuration document. Relative directories are
// resolved against baseDir.
func Decode(r io.Reader, baseDir string) (Config, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Config{}, &Error{Problems: []string{"malformed document: " + err.Error()}}
	}
	return doc.build(baseDir)
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func programDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func resolveDir(baseDir, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(baseDir, dir)
}

func (doc *document) build(baseDir string) (Config, error) {
	var problems []string
	missing := func(field string) {
		problems = append(problems, "missing "+field)
	}

	cfg := Config{
		Hardware: Hardware{
			Backend:         strings.ToLower(strings.TrimSpace(doc.Hardware.Backend)),
			Chip:            strings.TrimSpace(doc.Hardware.Chip),
			RelayActiveHigh: true,
			SafeMode:        doc.Hardware.SafeMode,
			VerifyPins:      doc.Hardware.Verify,
			BootScript:      resolveDir(baseDir, strings.TrimSpace(doc.Hardware.BootScript)),
			BootService:     strings.TrimSpace(doc.Hardware.BootService),
		},
		Units:           model.Units(strings.ToLower(strings.TrimSpace(doc.Display.Units))),
		Title:           strings.TrimSpace(doc.Display.Title),
		ControlInterval: DefaultControlInterval,
		LogDir:          resolveDir(baseDir, DefaultLogDir),
		Database:        resolveDir(baseDir, strings.TrimSpace(doc.Logging.Database)),
		Metrics: Metrics{
			StatsdAddr: strings.TrimSpace(doc.Metrics.Statsd),
			Namespace:  strings.TrimSpace(doc.Metrics.Namespace),
			Tags:       splitTags(doc.Metrics.Tags),
		},
		MQTT: MQTT{
			Broker:   strings.TrimSpace(doc.MQTT.Broker),
			Topic:    strings.TrimSpace(doc.MQTT.Topic),
			ClientID: strings.TrimSpace(doc.MQTT.ClientID),
		},
		Influx: Influx{
			Host:   strings.TrimSpace(doc.Influx.Host),
			Token:  strings.TrimSpace(doc.Influx.Token),
			Org:    strings.TrimSpace(doc.Influx.Org),
			Bucket: strings.TrimSpace(doc.Influx.Bucket),
		},
		NtfyTopic: strings.TrimSpace(doc.Notify.Ntfy),
	}

	if cfg.Hardware.Backend == "" {
		cfg.Hardware.Backend = "rpio"
	}
	if cfg.Hardware.Backend != "rpio" && cfg.Hardware.Backend != "gpiocdev" {
		problems = append(problems, fmt.Sprintf("unknown HARDWARE/BACKEND %q (want rpio or gpiocdev)", doc.Hardware.Backend))
	}
	if cfg.Hardware.Chip == "" {
		cfg.Hardware.Chip = "gpiochip0"
	}
	if cfg.Hardware.BootService != "" && cfg.Hardware.BootScript == "" {
		problems = append(problems, "HARDWARE/BOOTSERVICE needs HARDWARE/BOOTSCRIPT")
	}
	if doc.Hardware.RelayActiveHigh != nil {
		cfg.Hardware.RelayActiveHigh = *doc.Hardware.RelayActiveHigh
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = DefaultMQTTTopic
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "propagator"
	}

	usedPins := map[int]string{}
	conflicts := []string{}
	usePin := func(field string, pin int) {
		if other, exists := usedPins[pin]; exists {
			conflicts = append(conflicts, fmt.Sprintf("%s and %s both use pin %d", field, other, pin))
			return
		}
		usedPins[pin] = field
	}

	if doc.Hardware.Clock.Pin == nil {
		missing("HARDWARE/CLOCK/PIN")
	} else {
		cfg.Hardware.ClockPin = *doc.Hardware.Clock.Pin
		usePin("HARDWARE/CLOCK/PIN", cfg.Hardware.ClockPin)
	}
	if doc.Hardware.Data.Pin == nil {
		missing("HARDWARE/DATA/PIN")
	} else {
		cfg.Hardware.DataPin = *doc.Hardware.Data.Pin
		usePin("HARDWARE/DATA/PIN", cfg.Hardware.DataPin)
	}

	if len(doc.Sensors.Items) == 0 {
		missing("SENSORS (at least one sensor)")
	}
	for i, s := range doc.Sensors.Items {
		prefix := fmt.Sprintf("SENSORS[%d]/", i+1)
		ch := model.ChannelConfig{Name: strings.TrimSpace(s.Name)}
		if ch.Name == "" {
			missing(prefix + "NAME")
		}
		if s.CSPin == nil {
			missing(prefix + "CSPIN")
		} else {
			ch.CSPin = *s.CSPin
			usePin(prefix+"CSPIN", ch.CSPin)
		}
		if s.Relay == nil {
			missing(prefix + "RELAY")
		} else {
			ch.RelayPin = *s.Relay
			usePin(prefix+"RELAY", ch.RelayPin)
		}
		if s.Calibrate == nil {
			missing(prefix + "CALIBRATE")
		} else {
			ch.CalibrationOffset = *s.Calibrate
		}
		if s.Measured == nil {
			missing(prefix + "MEASURED")
		} else {
			ch.MeasuredOffset = *s.Measured
		}
		cfg.Channels = append(cfg.Channels, ch)
	}
	problems = append(problems, conflicts...)

	switch cfg.Units {
	case model.Celsius, model.Fahrenheit:
	case "":
		missing("DISPLAY/UNITS")
	default:
		problems = append(problems, fmt.Sprintf("DISPLAY/UNITS must be c or f, got %q", doc.Display.Units))
	}
	if cfg.Title == "" {
		missing("DISPLAY/TITLE")
	}

	if doc.Logging.Interval == nil {
		missing("LOGGING/INTERVAL")
	} else if *doc.Logging.Interval <= 0 {
		problems = append(problems, "LOGGING/INTERVAL must be a positive number of minutes")
	} else {
		cfg.LogInterval = time.Duration(*doc.Logging.Interval) * time.Minute
	}
	if dir := strings.TrimSpace(doc.Logging.Directory); dir != "" {
		cfg.LogDir = resolveDir(baseDir, dir)
	}

	if doc.Control.Interval != nil {
		if *doc.Control.Interval <= 0 {
			problems = append(problems, "CONTROL/INTERVAL must be a positive number of seconds")
		} else {
			cfg.ControlInterval = time.Duration(*doc.Control.Interval) * time.Second
		}
	}

	if len(doc.Temperatures.Items) == 0 {
		missing("TEMPERATURES (at least one entry)")
	}
	for i, e := range doc.Temperatures.Items {
		prefix := fmt.Sprintf("TEMPERATURES[%d]/", i+1)
		var entry model.ScheduleEntry
		tod, err := model.ParseTimeOfDay(strings.TrimSpace(e.Time))
		if err != nil {
			problems = append(problems, prefix+"TIME: "+err.Error())
		}
		entry.Time = tod
		if e.Temperature == nil {
			missing(prefix + "TEMPERATURE")
		} else {
			entry.Setpoint = *e.Temperature
		}
		if err == nil && len(cfg.Schedule) > 0 && entry.Time <= cfg.Schedule[len(cfg.Schedule)-1].Time {
			problems = append(problems, fmt.Sprintf("%sTIME %s is not after the previous entry", prefix, entry.Time))
		}
		cfg.Schedule = append(cfg.Schedule, entry)
	}

	if len(problems) > 0 {
		return Config{}, &Error{Problems: problems}
	}
	return cfg, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
