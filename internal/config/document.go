package config

// document mirrors the XML layout. Child elements of SENSORS and TEMPERATURES
// may carry any element name; only their order matters.
type document struct {
	Hardware struct {
		Clock           pinElement `xml:"CLOCK"`
		Data            pinElement `xml:"DATA"`
		Backend         string     `xml:"BACKEND"`
		Chip            string     `xml:"CHIP"`
		RelayActiveHigh *bool      `xml:"RELAYACTIVEHIGH"`
		SafeMode        bool       `xml:"SAFEMODE"`
		Verify          bool       `xml:"VERIFY"`
		BootScript      string     `xml:"BOOTSCRIPT"`
		BootService     string     `xml:"BOOTSERVICE"`
	} `xml:"HARDWARE"`

	Sensors struct {
		Items []sensorElement `xml:",any"`
	} `xml:"SENSORS"`

	Display struct {
		Units string `xml:"UNITS"`
		Title string `xml:"TITLE"`
	} `xml:"DISPLAY"`

	Logging struct {
		Interval  *int   `xml:"INTERVAL"`
		Directory string `xml:"DIRECTORY"`
		Database  string `xml:"DATABASE"`
	} `xml:"LOGGING"`

	Control struct {
		Interval *int `xml:"INTERVAL"`
	} `xml:"CONTROL"`

	Temperatures struct {
		Items []scheduleElement `xml:",any"`
	} `xml:"TEMPERATURES"`

	Metrics struct {
		Statsd    string `xml:"STATSD"`
		Namespace string `xml:"NAMESPACE"`
		Tags      string `xml:"TAGS"`
	} `xml:"METRICS"`

	MQTT struct {
		Broker   string `xml:"BROKER"`
		Topic    string `xml:"TOPIC"`
		ClientID string `xml:"CLIENTID"`
	} `xml:"MQTT"`

	Influx struct {
		Host   string `xml:"HOST"`
		Token  string `xml:"TOKEN"`
		Org    string `xml:"ORG"`
		Bucket string `xml:"BUCKET"`
	} `xml:"INFLUX"`

	Notify struct {
		Ntfy string `xml:"NTFY"`
	} `xml:"NOTIFY"`
}

type pinElement struct {
	Pin *int `xml:"PIN"`
}

type sensorElement struct {
	Name      string   `xml:"NAME"`
	CSPin     *int     `xml:"CSPIN"`
	Relay     *int     `xml:"RELAY"`
	Calibrate *float64 `xml:"CALIBRATE"`
	Measured  *float64 `xml:"MEASURED"`
}

type scheduleElement struct {
	Time        string   `xml:"TIME"`
	Temperature *float64 `xml:"TEMPERATURE"`
}
