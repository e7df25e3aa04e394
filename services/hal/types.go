// services/hal/types.go
package hal

import (
	"context"

	"sensornode-go/errcode"
)

// Quantity names one physical measurement.
type Quantity string

const (
	Temperature Quantity = "temperature" // °C
	Humidity    Quantity = "humidity"    // %RH
	CO2         Quantity = "co2"         // ppm (equivalent)
	TVOC        Quantity = "tvoc"        // ppb
	Pressure    Quantity = "pressure"    // hPa
)

// Reading is one datum for one quantity, unrounded.
type Reading struct {
	Quantity Quantity
	Value    float64
}

// Sample is a batch of readings collected together.
type Sample []Reading

// Adaptor owns a concrete device/driver and exposes one blocking read.
// Adaptors must NOT touch the bus or spawn goroutines.
type Adaptor interface {
	ID() string
	Type() string
	// Read performs a full measurement. A device with no fresh data returns
	// an error carrying ErrNotReady.
	Read(ctx context.Context) (Sample, error)
}

// ErrNotReady reports a device that has no new measurement yet.
var ErrNotReady error = errcode.NotReady
