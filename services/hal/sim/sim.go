// Package sim provides register-level models of the node's sensors behind a
// fake drivers.I2C, for host runs and tests.
package sim

import (
	"errors"
	"sync"

	"sensornode-go/drivers/sht21"

	"tinygo.org/x/drivers"
)

var ErrNack = errors.New("sim: address not acknowledged")

// Device answers transactions for one address. Calls are serialised by Bus.
type Device interface {
	Tx(w, r []byte) error
}

// Bus routes transactions to devices by address.
type Bus struct {
	mu   sync.Mutex
	devs map[uint16]Device
	fail map[uint16]bool
}

var _ drivers.I2C = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{devs: map[uint16]Device{}, fail: map[uint16]bool{}}
}

// Attach places dev at addr, replacing any device already there.
func (b *Bus) Attach(addr uint16, dev Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devs[addr] = dev
}

// SetFail makes every transaction to addr fail as if the device vanished.
func (b *Bus) SetFail(addr uint16, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[addr] = fail
}

// Locked runs f while holding the bus lock, so model values can change
// while a node is reading them.
func (b *Bus) Locked(f func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f()
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devs[addr]
	if !ok || b.fail[addr] {
		return ErrNack
	}
	return d.Tx(w, r)
}

// Standard builds a bus with the three node sensors at their default
// addresses and plausible indoor values.
func Standard() (*Bus, *SHT21, *CCS811, *BME280) {
	b := NewBus()
	s := &SHT21{TempC: 21.5, RH: 48.25}
	c := NewCCS811(412, 9)
	p := NewBME280()
	b.Attach(sht21.Address, s)
	b.Attach(0x5A, c)
	b.Attach(0x76, p)
	return b, s, c, p
}

// -----------------------------------------------------------------------------
// SHT21
// -----------------------------------------------------------------------------

// SHT21 encodes TempC/RH into the device's raw words on each read.
type SHT21 struct {
	TempC float64
	RH    float64
	cmd   byte
}

func (s *SHT21) Tx(w, r []byte) error {
	if len(w) > 0 {
		s.cmd = w[0]
	}
	if len(r) == 0 {
		return nil
	}
	var raw uint16
	switch s.cmd {
	case 0xF3:
		raw = encode((s.TempC + 46.85) / 175.72)
	case 0xF5:
		raw = encode((s.RH + 6) / 125.0)
	default:
		return errors.New("sim: sht21 read without measurement")
	}
	raw |= 0x02 // status bit, must be ignored by the codec
	frame := []byte{byte(raw >> 8), byte(raw), 0}
	frame[2] = sht21.CRC8(frame[0], frame[1])
	copy(r, frame)
	return nil
}

// Decoded returns the values the codec will produce for the current
// settings, after quantisation.
func (s *SHT21) Decoded() (tempC, rh float64) {
	return sht21.Celsius(encode((s.TempC + 46.85) / 175.72)),
		sht21.RelHumidity(encode((s.RH + 6) / 125.0))
}

func encode(frac float64) uint16 {
	v := frac * 65536
	if v < 0 {
		v = 0
	}
	if v > 0xFFFC {
		v = 0xFFFC
	}
	return uint16(v+0.5) & 0xFFFC
}

// -----------------------------------------------------------------------------
// CCS811
// -----------------------------------------------------------------------------

// CCS811 starts in boot mode. Once its application runs, every STATUS poll
// reports DATA_READY unless NotReadyEvery says otherwise.
type CCS811 struct {
	ECO2, TVOC uint16
	// NotReadyEvery makes every Nth read find DATA_READY clear (0 disables).
	NotReadyEvery int

	app   bool
	polls int
}

func NewCCS811(eco2, tvoc uint16) *CCS811 {
	return &CCS811{ECO2: eco2, TVOC: tvoc}
}

func (c *CCS811) ready() bool {
	if !c.app {
		return false
	}
	if c.NotReadyEvery > 0 && c.polls%c.NotReadyEvery == 0 {
		return false
	}
	return true
}

func (c *CCS811) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	switch w[0] {
	case 0x20: // HW_ID
		r[0] = 0x81
	case 0x00: // STATUS
		c.polls++
		s := byte(1 << 4) // APP_VALID
		if c.app {
			s |= 1 << 7
		}
		if c.ready() {
			s |= 1 << 3
		}
		r[0] = s
	case 0xF4: // APP_START
		c.app = true
	case 0x01, 0xFF: // MEAS_MODE, SW_RESET
	case 0x02: // ALG_RESULT_DATA
		frame := [8]byte{
			byte(c.ECO2 >> 8), byte(c.ECO2),
			byte(c.TVOC >> 8), byte(c.TVOC),
			0x98, 0x00, 0x04, 0x21,
		}
		copy(r, frame[:])
	default:
		return errors.New("sim: ccs811 unknown register")
	}
	return nil
}

// -----------------------------------------------------------------------------
// BME280
// -----------------------------------------------------------------------------

// BME280 is a register file seeded with the datasheet's worked-example
// calibration and ADC values (25.08 °C, 1006.53 hPa).
type BME280 struct {
	regs [256]byte
}

func NewBME280() *BME280 {
	b := &BME280{}
	b.regs[0xD0] = 0x60

	calib := []int32{27504, 26435, -1000, 36477, -10685, 3024, 2855, 140, -7, 15500, -14600, 6000}
	for i, v := range calib {
		b.regs[0x88+2*i] = byte(v)
		b.regs[0x88+2*i+1] = byte(v >> 8)
	}
	b.SetADC(519888, 415148)
	return b
}

// SetADC loads raw 20-bit temperature and pressure conversions.
func (b *BME280) SetADC(adcT, adcP uint32) {
	p, t := adcP<<4, adcT<<4
	b.regs[0xF7], b.regs[0xF8], b.regs[0xF9] = byte(p>>16), byte(p>>8), byte(p)
	b.regs[0xFA], b.regs[0xFB], b.regs[0xFC] = byte(t>>16), byte(t>>8), byte(t)
}

func (b *BME280) Tx(w, r []byte) error {
	if len(w) == 0 {
		return nil
	}
	reg := int(w[0])
	if len(r) == 0 {
		// Only the control registers are writable.
		for i, v := range w[1:] {
			if a := reg + i; a >= 0xF2 && a <= 0xF5 {
				b.regs[a] = v
			}
		}
		return nil
	}
	for i := range r {
		r[i] = b.regs[(reg+i)&0xFF]
	}
	return nil
}
