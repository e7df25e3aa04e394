// Package ccs811 provides a driver for the AMS CCS811 digital gas sensor
// (equivalent CO2 and total VOC).
//
// The part boots into a bootloader. Configure verifies the hardware id,
// starts the application firmware and selects a constant-power drive mode.
// After that Read returns the latest algorithm result once the STATUS
// register flags DATA_READY:
//
//	ready, err := d.DataReady()
//	s, err := d.Read()   // ErrNotReady when no new sample is available
package ccs811

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address (ADDR pin low). 0x5B with ADDR high.
const Address = 0x5A

// Registers.
const (
	regStatus     = 0x00
	regMeasMode   = 0x01
	regAlgResult  = 0x02
	regHWID       = 0x20
	regErrorID    = 0xE0
	regAppStart   = 0xF4
	regSWReset    = 0xFF
	hwIDExpected  = 0x81
	algResultSize = 8
)

// STATUS bits.
const (
	statusError     = 1 << 0
	statusDataReady = 1 << 3
	statusAppValid  = 1 << 4
	statusFWMode    = 1 << 7
)

// DriveMode selects the measurement period.
type DriveMode byte

const (
	ModeIdle  DriveMode = 0 // measurements disabled
	Mode1s    DriveMode = 1
	Mode10s   DriveMode = 2
	Mode60s   DriveMode = 3
	Mode250ms DriveMode = 4 // raw data only
)

var (
	ErrNotReady     = errors.New("ccs811: not ready")
	ErrWrongID      = errors.New("ccs811: unexpected hardware id")
	ErrNoFirmware   = errors.New("ccs811: no valid application firmware")
	ErrNotInAppMode = errors.New("ccs811: application did not start")
)

// DeviceError reports the ERROR_ID register after STATUS flagged an error.
type DeviceError struct{ ID byte }

func (e DeviceError) Error() string {
	const hex = "0123456789abcdef"
	return "ccs811: device error 0x" + string([]byte{hex[e.ID>>4], hex[e.ID&0xF]})
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x5A if zero.
	Address uint16
	// Mode defaults to Mode1s.
	Mode DriveMode
}

// Sample is one algorithm result.
type Sample struct {
	ECO2 uint16 // ppm
	TVOC uint16 // ppb
	// Raw carries the current (upper 6 bits) and ADC reading (lower 10 bits).
	Raw uint16
}

// Device wraps an I2C connection to a CCS811 device.
type Device struct {
	bus     drivers.I2C
	Address uint16
	mode    DriveMode
	buf     [algResultSize]byte
	sleep   func(time.Duration)
}

// New creates a new CCS811 connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
		mode:    Mode1s,
		sleep:   time.Sleep,
	}
}

// Configure checks the part, starts the application and sets the drive mode.
func (d *Device) Configure(cfgs ...Config) error {
	if len(cfgs) > 0 {
		c := cfgs[0]
		if c.Address != 0 {
			d.Address = c.Address
		}
		if c.Mode != 0 {
			d.mode = c.Mode
		}
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}

	id, err := d.readReg(regHWID)
	if err != nil {
		return err
	}
	if id != hwIDExpected {
		return ErrWrongID
	}

	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusAppValid == 0 {
		return ErrNoFirmware
	}
	if st&statusFWMode == 0 {
		if err := d.bus.Tx(d.Address, []byte{regAppStart}, nil); err != nil {
			return err
		}
		d.sleep(time.Millisecond)
		if st, err = d.Status(); err != nil {
			return err
		}
		if st&statusFWMode == 0 {
			return ErrNotInAppMode
		}
	}
	return d.SetMode(d.mode)
}

// SetMode writes MEAS_MODE. Interrupts stay disabled.
func (d *Device) SetMode(m DriveMode) error {
	d.mode = m
	return d.bus.Tx(d.Address, []byte{regMeasMode, byte(m&0x07) << 4}, nil)
}

// Reset issues the software reset sequence. The part returns to boot mode.
func (d *Device) Reset() error {
	return d.bus.Tx(d.Address, []byte{regSWReset, 0x11, 0xE5, 0x72, 0x8A}, nil)
}

// Status reads the STATUS register.
func (d *Device) Status() (byte, error) {
	return d.readReg(regStatus)
}

// DataReady reports whether a new algorithm result is waiting.
func (d *Device) DataReady() (bool, error) {
	st, err := d.Status()
	if err != nil {
		return false, err
	}
	return st&statusDataReady != 0, nil
}

// Read fetches the latest result. It returns ErrNotReady when DATA_READY is
// clear and a DeviceError when the part flags an error.
func (d *Device) Read() (Sample, error) {
	ready, err := d.DataReady()
	if err != nil {
		return Sample{}, err
	}
	if !ready {
		return Sample{}, ErrNotReady
	}
	b := d.buf[:]
	if err := d.bus.Tx(d.Address, []byte{regAlgResult}, b); err != nil {
		return Sample{}, err
	}
	if b[4]&statusError != 0 {
		id, err := d.readReg(regErrorID)
		if err != nil {
			return Sample{}, err
		}
		return Sample{}, DeviceError{ID: id}
	}
	return Sample{
		ECO2: uint16(b[0])<<8 | uint16(b[1]),
		TVOC: uint16(b[2])<<8 | uint16(b[3]),
		Raw:  uint16(b[6])<<8 | uint16(b[7]),
	}, nil
}

func (d *Device) readReg(reg byte) (byte, error) {
	var v [1]byte
	if err := d.bus.Tx(d.Address, []byte{reg}, v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}
