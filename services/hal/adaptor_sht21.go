// services/hal/adaptor_sht21.go
package hal

import (
	"context"

	"sensornode-go/drivers/sht21"

	"tinygo.org/x/drivers"
)

func init() {
	RegisterBuilder("sht21", BuilderFunc(func(in BuildInput) (Adaptor, error) {
		return NewSHT21Adaptor(in.Sensor.ID, in.Bus, sht21.Config{Address: in.Sensor.Addr, Sleep: in.Sleep}), nil
	}))
}

type sht21Adaptor struct {
	id  string
	dev sht21.Device
}

// NewSHT21Adaptor does not touch the device; the part has no identity
// register, so absence shows up as bus errors on read.
func NewSHT21Adaptor(id string, bus drivers.I2C, cfg sht21.Config) Adaptor {
	dev := sht21.New(bus)
	dev.Configure(cfg)
	return &sht21Adaptor{id: id, dev: dev}
}

func (a *sht21Adaptor) ID() string   { return a.id }
func (a *sht21Adaptor) Type() string { return "sht21" }

// Read takes temperature then humidity. Either failing fails the sample.
func (a *sht21Adaptor) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.dev.ReadTemperature()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := a.dev.ReadHumidity()
	if err != nil {
		return nil, err
	}
	return Sample{
		{Quantity: Temperature, Value: t},
		{Quantity: Humidity, Value: h},
	}, nil
}
