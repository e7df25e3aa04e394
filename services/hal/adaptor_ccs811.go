// services/hal/adaptor_ccs811.go
package hal

import (
	"context"
	"errors"

	"sensornode-go/drivers/ccs811"
	"sensornode-go/errcode"

	"tinygo.org/x/drivers"
)

func init() {
	RegisterBuilder("ccs811", BuilderFunc(func(in BuildInput) (Adaptor, error) {
		return NewCCS811Adaptor(in.Sensor.ID, in.Bus, in.Sensor.Addr)
	}))
}

type ccs811Adaptor struct {
	id  string
	dev ccs811.Device
}

// NewCCS811Adaptor verifies the part and starts its application firmware.
func NewCCS811Adaptor(id string, bus drivers.I2C, addr uint16) (Adaptor, error) {
	const op = "ccs811.init"
	dev := ccs811.New(bus)
	if err := dev.Configure(ccs811.Config{Address: addr, Mode: ccs811.Mode1s}); err != nil {
		if errors.Is(err, ccs811.ErrWrongID) || errors.Is(err, ccs811.ErrNoFirmware) {
			return nil, errcode.Wrap(errcode.NotPresent, op, err)
		}
		return nil, errcode.Wrap(errcode.BusError, op, err)
	}
	return &ccs811Adaptor{id: id, dev: dev}, nil
}

func (a *ccs811Adaptor) ID() string   { return a.id }
func (a *ccs811Adaptor) Type() string { return "ccs811" }

func (a *ccs811Adaptor) Read(ctx context.Context) (Sample, error) {
	const op = "ccs811.read"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := a.dev.Read()
	switch {
	case errors.Is(err, ccs811.ErrNotReady):
		return nil, errcode.Wrap(errcode.NotReady, op, ErrNotReady)
	case err != nil:
		return nil, errcode.Wrap(errcode.BusError, op, err)
	}
	return Sample{
		{Quantity: CO2, Value: float64(s.ECO2)},
		{Quantity: TVOC, Value: float64(s.TVOC)},
	}, nil
}
