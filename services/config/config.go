package config

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"
	"time"

	"sensornode-go/bus"
	"sensornode-go/errcode"
	"sensornode-go/x/mathx"
	"sensornode-go/x/strx"

	"gopkg.in/yaml.v3"
)

const (
	configPrefix  = "config"
	DefaultMarker = "VERSION = "
	// DropField in a sensor field map suppresses that quantity.
	DropField = "-"
)

// SensorTypes lists the sensor types the node knows how to drive.
var SensorTypes = []string{"sht21", "ccs811", "bme280"}

//go:embed configs/*.yaml
var embedded embed.FS

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, err := embedded.ReadFile(path.Join("configs", device+".yaml"))
	if err != nil {
		return nil, false
	}
	return b, true
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Config is loaded once at startup and passed down; nothing mutates it after.
type Config struct {
	DeviceID  string    `yaml:"device_id"`
	LogLevel  string    `yaml:"log_level"`
	WiFi      WiFi      `yaml:"wifi"`
	Portal    Portal    `yaml:"portal"`
	OTA       OTA       `yaml:"ota"`
	Report    Report    `yaml:"report"`
	Telemetry Telemetry `yaml:"telemetry"`
	I2C       I2C       `yaml:"i2c"`
	Sensors   []Sensor  `yaml:"sensors"`
	Diag      Diag      `yaml:"diag"`
}

type WiFi struct {
	SSID         string        `yaml:"ssid"`
	Password     string        `yaml:"password"`
	Iface        string        `yaml:"iface"`
	Attempts     int           `yaml:"attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Portal is the captive-portal login; Validate requires LoginURL.
type Portal struct {
	LoginURL  string        `yaml:"login_url"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	RedirURL  string        `yaml:"redir_url"`
	Zone      string        `yaml:"zone"`
	Accept    string        `yaml:"accept"`
	Host      string        `yaml:"host"`
	Origin    string        `yaml:"origin"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type OTA struct {
	SourceURL   string `yaml:"source_url"`
	BootPath    string `yaml:"boot_path"`
	StagingPath string `yaml:"staging_path"`
	Marker      string `yaml:"marker"`
}

type Report struct {
	BaseURL      string        `yaml:"base_url"`
	DeploymentID string        `yaml:"deployment_id"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Endpoint is <base_url><deployment_id>/exec.
func (r Report) Endpoint() string {
	return r.BaseURL + r.DeploymentID + "/exec"
}

type Telemetry struct {
	Interval    time.Duration `yaml:"interval"`
	LogThrottle time.Duration `yaml:"log_throttle"`
}

type I2C struct {
	Bus       int    `yaml:"bus"`
	Frequency uint32 `yaml:"frequency"`
}

type Sensor struct {
	ID     string            `yaml:"id"`
	Type   string            `yaml:"type"`
	Addr   uint16            `yaml:"addr"`
	Fields map[string]string `yaml:"fields"`
}

// Field returns the report field name for a quantity. Unmapped quantities
// fall back to <id>_<quantity>; a mapping of "-" drops the quantity.
func (s Sensor) Field(quantity string) (string, bool) {
	name, ok := s.Fields[quantity]
	if !ok || name == "" {
		return s.ID + "_" + quantity, true
	}
	if name == DropField {
		return "", false
	}
	return name, true
}

type Diag struct {
	Listen string `yaml:"listen"`
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// Load resolves the embedded document for device, decodes it, applies
// defaults and validates the result.
func Load(device string) (Config, error) {
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return Config{}, errcode.New(errcode.InvalidConfig, "config.load", "no embedded config for device: "+device)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, err
	}
	cfg.DeviceID = strx.Coalesce(cfg.DeviceID, device)
	return cfg, nil
}

// Parse decodes one YAML document. Unknown keys are rejected.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidConfig, "config.parse", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.LogLevel = strx.Coalesce(strings.ToLower(c.LogLevel), "info")

	if c.WiFi.Attempts <= 0 {
		c.WiFi.Attempts = 15
	}
	c.WiFi.Attempts = mathx.Clamp(c.WiFi.Attempts, 1, 600)
	if c.WiFi.PollInterval <= 0 {
		c.WiFi.PollInterval = time.Second
	}

	if c.Portal.Timeout <= 0 {
		c.Portal.Timeout = 15 * time.Second
	}
	c.Portal.UserAgent = strx.Coalesce(c.Portal.UserAgent,
		"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0")

	c.OTA.Marker = strx.Coalesce(c.OTA.Marker, DefaultMarker)

	if c.Report.Timeout <= 0 {
		c.Report.Timeout = 15 * time.Second
	}

	if c.Telemetry.Interval <= 0 {
		c.Telemetry.Interval = 5 * time.Second
	}
	if c.Telemetry.LogThrottle <= 0 {
		c.Telemetry.LogThrottle = time.Minute
	}

	if c.I2C.Frequency == 0 {
		c.I2C.Frequency = 100_000
	}
	c.I2C.Frequency = mathx.Clamp(c.I2C.Frequency, 10_000, 400_000)

	for i := range c.Sensors {
		c.Sensors[i].Type = strings.ToLower(c.Sensors[i].Type)
		c.Sensors[i].ID = strx.Coalesce(c.Sensors[i].ID, c.Sensors[i].Type)
	}
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	const op = "config.validate"
	switch {
	case c.WiFi.SSID == "":
		return errcode.New(errcode.InvalidConfig, op, "wifi.ssid is required")
	case c.OTA.SourceURL == "":
		return errcode.New(errcode.InvalidConfig, op, "ota.source_url is required")
	case c.OTA.BootPath == "" || c.OTA.StagingPath == "":
		return errcode.New(errcode.InvalidConfig, op, "ota.boot_path and ota.staging_path are required")
	case path.Clean(c.OTA.BootPath) == path.Clean(c.OTA.StagingPath):
		return errcode.New(errcode.InvalidConfig, op, "ota.staging_path must differ from ota.boot_path")
	case c.Report.BaseURL == "":
		return errcode.New(errcode.InvalidConfig, op, "report.base_url is required")
	case c.Portal.LoginURL == "":
		return errcode.New(errcode.InvalidConfig, op, "portal.login_url is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errcode.New(errcode.InvalidConfig, op, "unknown log_level: "+c.LogLevel)
	}

	seen := map[string]bool{}
	for _, s := range c.Sensors {
		if !knownType(s.Type) {
			return errcode.New(errcode.UnknownSensor, op, "unknown sensor type: "+s.Type)
		}
		if s.Addr != 0 && !mathx.Between(s.Addr, 0x08, 0x77) {
			return errcode.New(errcode.InvalidConfig, op, fmt.Sprintf("sensor %s: address 0x%02X outside 0x08..0x77", s.ID, s.Addr))
		}
		if seen[s.ID] {
			return errcode.New(errcode.InvalidConfig, op, "duplicate sensor id: "+s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func knownType(t string) bool {
	for _, k := range SensorTypes {
		if k == t {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Publishing
// -----------------------------------------------------------------------------

// Publish places each top-level section on the bus as a retained
// config/<section> message. Secrets are not published.
func Publish(conn *bus.Connection, cfg Config) {
	redacted := cfg
	if redacted.WiFi.Password != "" {
		redacted.WiFi.Password = "***"
	}
	if redacted.Portal.Password != "" {
		redacted.Portal.Password = "***"
	}
	sections := map[string]any{
		"device_id": redacted.DeviceID,
		"wifi":      redacted.WiFi,
		"portal":    redacted.Portal,
		"ota":       redacted.OTA,
		"report":    redacted.Report,
		"telemetry": redacted.Telemetry,
		"i2c":       redacted.I2C,
		"sensors":   redacted.Sensors,
	}
	for k, v := range sections {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
}
