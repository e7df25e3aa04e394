// services/hal/adaptor_bme280.go
package hal

import (
	"context"

	"sensornode-go/errcode"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

func init() {
	RegisterBuilder("bme280", BuilderFunc(func(in BuildInput) (Adaptor, error) {
		return NewBME280Adaptor(in.Sensor.ID, in.Bus, in.Sensor.Addr)
	}))
}

// bme280Reader is the part of bme280.Device the adaptor uses.
type bme280Reader interface {
	ReadTemperature() (int32, error) // milli-°C
	ReadPressure() (int32, error)    // mPa
}

type bme280Adaptor struct {
	id  string
	dev bme280Reader
}

// NewBME280Adaptor checks the chip id, then loads calibration and starts
// normal-mode sampling.
func NewBME280Adaptor(id string, bus drivers.I2C, addr uint16) (Adaptor, error) {
	dev := bme280.New(bus)
	if addr != 0 {
		dev.Address = addr
	}
	if !dev.Connected() {
		return nil, errcode.New(errcode.NotPresent, "bme280.init", "chip id mismatch or no answer")
	}
	dev.Configure()
	return &bme280Adaptor{id: id, dev: &dev}, nil
}

func (a *bme280Adaptor) ID() string   { return a.id }
func (a *bme280Adaptor) Type() string { return "bme280" }

func (a *bme280Adaptor) Read(ctx context.Context) (Sample, error) {
	const op = "bme280.read"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mc, err := a.dev.ReadTemperature()
	if err != nil {
		return nil, errcode.Wrap(errcode.BusError, op, err)
	}
	mpa, err := a.dev.ReadPressure()
	if err != nil {
		return nil, errcode.Wrap(errcode.BusError, op, err)
	}
	return Sample{
		{Quantity: Temperature, Value: float64(mc) / 1000},
		{Quantity: Pressure, Value: float64(mpa) / 100_000},
	}, nil
}
