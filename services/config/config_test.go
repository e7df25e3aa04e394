// config/config_test.go
package config

import (
	"testing"
	"time"

	"sensornode-go/bus"
	"sensornode-go/errcode"

	"github.com/stretchr/testify/require"
)

const minimal = `
wifi:
  ssid: lab
ota:
  source_url: http://ota/main.py
  boot_path: /main.py
  staging_path: /new_main.py
report:
  base_url: http://collector/s/
  deployment_id: dep
portal:
  login_url: http://portal/index.php
sensors:
  - id: sht21
    type: SHT21
    addr: 0x40
    fields:
      temperature: Temperatura
      humidity: "-"
`

func withLookup(t *testing.T, docs map[string]string) {
	t.Helper()
	old := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		s, ok := docs[device]
		return []byte(s), ok
	}
	t.Cleanup(func() { EmbeddedConfigLookup = old })
}

func TestLoadAppliesDefaults(t *testing.T) {
	withLookup(t, map[string]string{"pico": minimal})

	cfg, err := Load("pico")
	require.NoError(t, err)
	require.Equal(t, "pico", cfg.DeviceID)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 15, cfg.WiFi.Attempts)
	require.Equal(t, time.Second, cfg.WiFi.PollInterval)
	require.Equal(t, 5*time.Second, cfg.Telemetry.Interval)
	require.Equal(t, time.Minute, cfg.Telemetry.LogThrottle)
	require.Equal(t, 15*time.Second, cfg.Portal.Timeout)
	require.Equal(t, DefaultMarker, cfg.OTA.Marker)
	require.Equal(t, uint32(100_000), cfg.I2C.Frequency)
	require.Equal(t, "http://collector/s/dep/exec", cfg.Report.Endpoint())

	require.Len(t, cfg.Sensors, 1)
	s := cfg.Sensors[0]
	require.Equal(t, "sht21", s.Type)
	require.Equal(t, uint16(0x40), s.Addr)
}

func TestSensorFieldMapping(t *testing.T) {
	s := Sensor{ID: "sht21", Fields: map[string]string{"temperature": "Temperatura", "humidity": DropField}}

	name, ok := s.Field("temperature")
	require.True(t, ok)
	require.Equal(t, "Temperatura", name)

	_, ok = s.Field("humidity")
	require.False(t, ok)

	name, ok = s.Field("pressure")
	require.True(t, ok)
	require.Equal(t, "sht21_pressure", name)
}

func TestLoadMissingDevice(t *testing.T) {
	withLookup(t, map[string]string{})
	_, err := Load("nope")
	require.Equal(t, errcode.InvalidConfig, errcode.Of(err))
}

func TestParseRejects(t *testing.T) {
	const base = "wifi: {ssid: s}\nota: {source_url: x, boot_path: a, staging_path: b}\nreport: {base_url: y}\nportal: {login_url: p}\n"
	cases := map[string]string{
		"no ssid":       "ota: {source_url: x, boot_path: a, staging_path: b}\nreport: {base_url: y}\nportal: {login_url: p}\n",
		"same slots":    "wifi: {ssid: s}\nota: {source_url: x, boot_path: /a, staging_path: /a}\nreport: {base_url: y}\nportal: {login_url: p}\n",
		"no portal":     "wifi: {ssid: s}\nota: {source_url: x, boot_path: a, staging_path: b}\nreport: {base_url: y}\n",
		"unknown key":   "wifi: {ssid: s, bogus: 1}\n",
		"bad address":   base + "sensors:\n  - {id: t, type: sht21, addr: 0x90}\n",
		"unknown level": "log_level: loud\n" + base,
	}
	_, err := Parse([]byte(base))
	require.NoError(t, err)
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			require.Equal(t, errcode.InvalidConfig, errcode.Of(err))
		})
	}
}

func TestParseRejectsUnknownSensor(t *testing.T) {
	doc := "wifi: {ssid: s}\nota: {source_url: x, boot_path: a, staging_path: b}\nreport: {base_url: y}\nportal: {login_url: p}\n" +
		"sensors:\n  - {id: x, type: dht22}\n"
	_, err := Parse([]byte(doc))
	require.Equal(t, errcode.UnknownSensor, errcode.Of(err))
}

func TestEmbeddedConfigsParse(t *testing.T) {
	for _, dev := range []string{"poli", "sim"} {
		cfg, err := Load(dev)
		require.NoError(t, err, dev)
		require.Equal(t, dev, cfg.DeviceID)
		require.Len(t, cfg.Sensors, 3)
	}

	cfg, err := Load("poli")
	require.NoError(t, err)
	require.Equal(t, "PoliSemFio", cfg.WiFi.SSID)
	require.Equal(t, "cpzone", cfg.Portal.Zone)
	require.Equal(t, "/new_main.py", cfg.OTA.StagingPath)
	name, ok := cfg.Sensors[1].Field("tvoc")
	require.False(t, ok, name)
}

func TestPublishRetainedPerSection(t *testing.T) {
	withLookup(t, map[string]string{"pico": minimal})
	cfg, err := Load("pico")
	require.NoError(t, err)
	cfg.Portal.Password = "secret"

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	Publish(conn, cfg)

	msg, ok := b.Retained(bus.T(configPrefix, "wifi"))
	require.True(t, ok)
	require.Equal(t, "lab", msg.Payload.(WiFi).SSID)

	msg, ok = b.Retained(bus.T(configPrefix, "portal"))
	require.True(t, ok)
	require.Equal(t, "***", msg.Payload.(Portal).Password)

	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	got := map[string]bool{}
	deadline := time.After(500 * time.Millisecond)
	for len(got) < 8 {
		select {
		case m := <-sub.Channel():
			got[m.Topic[1]] = true
		case <-deadline:
			t.Fatalf("got %d retained sections: %v", len(got), got)
		}
	}
}
