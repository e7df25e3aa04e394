// Package sht21 provides a driver for the SHT21 / SI7021 family of
// temperature/humidity sensors.
//
// Each measurement is one bus transaction pair in "no hold master" mode:
//
//	bus.Tx(addr, []byte{cmd}, nil)   // start conversion
//	(fixed settle delay)
//	bus.Tx(addr, nil, buf[:3])       // MSB, LSB, CRC
//
// The two low bits of the LSB are status bits and are masked off before
// conversion. Conversions are returned unrounded.
package sht21

import (
	"time"

	"sensornode-go/errcode"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x40

// Commands (no hold master).
const (
	cmdMeasureTemp = 0xF3
	cmdMeasureRH   = 0xF5
	cmdSoftReset   = 0xFE
)

// SettleDelay is the conversion time the device needs between command and
// read-out. It is a property of the part, not a tunable.
const SettleDelay = 100 * time.Millisecond

const statusMask = 0xFFFC

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x40 if zero.
	Address uint16
	// VerifyCRC rejects frames whose checksum byte does not match.
	VerifyCRC bool
	// Sleep replaces time.Sleep for the settle delay.
	Sleep func(time.Duration)
}

// Device wraps an I2C connection to an SHT21 device.
type Device struct {
	bus       drivers.I2C
	Address   uint16
	verifyCRC bool
	buf       [3]byte
	sleep     func(time.Duration)
}

// New creates a new SHT21 connection. The I2C bus must already be configured.
// This function only creates the Device object; it does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
		sleep:   time.Sleep,
	}
}

// Configure applies optional config.
func (d *Device) Configure(cfg Config) {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	d.verifyCRC = cfg.VerifyCRC
	if cfg.Sleep != nil {
		d.sleep = cfg.Sleep
	}
}

// Reset issues a soft reset. The part needs ~15 ms afterwards.
func (d *Device) Reset() error {
	return d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// ReadTemperature performs one measurement and returns °C.
func (d *Device) ReadTemperature() (float64, error) {
	raw, err := d.measure(cmdMeasureTemp, "sht21.temperature")
	if err != nil {
		return 0, err
	}
	return Celsius(raw), nil
}

// ReadHumidity performs one measurement and returns %RH.
func (d *Device) ReadHumidity() (float64, error) {
	raw, err := d.measure(cmdMeasureRH, "sht21.humidity")
	if err != nil {
		return 0, err
	}
	return RelHumidity(raw), nil
}

func (d *Device) measure(cmd byte, op string) (uint16, error) {
	if err := d.bus.Tx(d.Address, []byte{cmd}, nil); err != nil {
		return 0, errcode.Wrap(errcode.BusError, op, err)
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	d.sleep(SettleDelay)
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return 0, errcode.Wrap(errcode.BusError, op, err)
	}
	if d.verifyCRC && CRC8(data[0], data[1]) != data[2] {
		return 0, errcode.New(errcode.CRCMismatch, op, "checksum byte does not match")
	}
	return Raw(data[0], data[1]), nil
}

// Raw assembles the 16-bit register value with the status bits cleared.
func Raw(msb, lsb byte) uint16 {
	return (uint16(msb)<<8 | uint16(lsb)) & statusMask
}

// Celsius converts a raw temperature word to °C.
func Celsius(raw uint16) float64 {
	return -46.85 + 175.72*float64(raw)/65536.0
}

// RelHumidity converts a raw humidity word to %RH. Values outside 0..100 are
// possible near the ends of the range and are returned as-is.
func RelHumidity(raw uint16) float64 {
	return -6 + 125.0*float64(raw)/65536.0
}

// CRC8 computes the SHT2x checksum (polynomial x^8+x^5+x^4+1, init 0).
func CRC8(msb, lsb byte) byte {
	var crc byte
	for _, b := range [2]byte{msb, lsb} {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
