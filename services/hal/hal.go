// services/hal/hal.go
package hal

import (
	"context"
	"log/slog"
	"time"

	"sensornode-go/errcode"
	"sensornode-go/services/config"

	"tinygo.org/x/drivers"
)

// Slot is one configured sensor: either Available with an adaptor or
// Unavailable with the error that made it so.
type Slot struct {
	Sensor  config.Sensor
	Adaptor Adaptor
	Err     error
}

func Available(s config.Sensor, a Adaptor) Slot   { return Slot{Sensor: s, Adaptor: a} }
func Unavailable(s config.Sensor, err error) Slot { return Slot{Sensor: s, Err: err} }

func (s Slot) Available() bool { return s.Adaptor != nil && s.Err == nil }

// Fields maps a sample onto report field names.
func (s Slot) Fields(sample Sample) map[string]float64 {
	out := make(map[string]float64, len(sample))
	for _, r := range sample {
		if name, ok := s.Sensor.Field(string(r.Quantity)); ok {
			out[name] = r.Value
		}
	}
	return out
}

// SensorSet is the capability set fixed at startup. It is never re-probed
// during a boot.
type SensorSet []Slot

// Available returns the slots that have an adaptor, in config order.
func (ss SensorSet) Available() []Slot {
	var out []Slot
	for _, s := range ss {
		if s.Available() {
			out = append(out, s)
		}
	}
	return out
}

// ProbeOptions are optional inputs to Probe.
type ProbeOptions struct {
	Sleep func(time.Duration)
}

// Probe builds and initialises every configured sensor once.
func Probe(ctx context.Context, bus drivers.I2C, sensors []config.Sensor, log *slog.Logger, opts ...ProbeOptions) SensorSet {
	var o ProbeOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	log = log.With("svc", "hal")

	set := make(SensorSet, 0, len(sensors))
	for _, s := range sensors {
		b, ok := findBuilder(s.Type)
		if !ok {
			err := errcode.New(errcode.UnknownSensor, "hal.probe", s.Type)
			log.Error("sensor unavailable", "sensor", s.ID, "type", s.Type, "err", err)
			set = append(set, Unavailable(s, err))
			continue
		}
		a, err := b.Build(BuildInput{Ctx: ctx, Bus: bus, Sensor: s, Sleep: o.Sleep})
		if err != nil {
			log.Error("sensor unavailable", "sensor", s.ID, "type", s.Type, "code", errcode.Of(err), "err", err)
			set = append(set, Unavailable(s, err))
			continue
		}
		log.Info("sensor ready", "sensor", s.ID, "type", s.Type, "addr", s.Addr)
		set = append(set, Available(s, a))
	}
	return set
}
