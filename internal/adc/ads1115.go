package adc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddress is the ADS1115 address with ADDR tied to GND.
const DefaultAddress = 0x48

const (
	regConversion = 0x00
	regConfig     = 0x01

	cfgStartSingle = 0x8000 // OS: begin a single conversion
	cfgMuxSingle   = 0x4000 // MUX 1xx: AINx vs GND, channel in bits 12-13
	cfgPGA4096     = 0x0200 // FSR ±4.096 V
	cfgModeSingle  = 0x0100 // power-down single-shot mode
	cfgRate128     = 0x0080 // 128 samples per second
	cfgCompDisable = 0x0003

	// One conversion at 128 SPS takes 7.8ms.
	conversionDelay = 9 * time.Millisecond
)

// ADS1115 reads one single-ended channel of a TI ADS1115 over I2C.
type ADS1115 struct {
	bus     i2c.BusCloser
	dev     i2c.Dev
	channel int
	invert  bool
}

// NewADS1115 opens the named I2C bus ("" for the first available) and
// addresses the converter at addr.
func NewADS1115(busName string, addr uint16, channel int, invert bool) (*ADS1115, error) {
	if channel < 0 || channel > 3 {
		return nil, fmt.Errorf("invalid ADS1115 channel %d (want 0-3)", channel)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	return &ADS1115{
		bus:     bus,
		dev:     i2c.Dev{Bus: bus, Addr: addr},
		channel: channel,
		invert:  invert,
	}, nil
}

// Read triggers a single-shot conversion and returns the normalised dryness.
func (a *ADS1115) Read() (uint16, error) {
	cfg := uint16(cfgStartSingle | cfgMuxSingle | cfgPGA4096 | cfgModeSingle | cfgRate128 | cfgCompDisable)
	cfg |= uint16(a.channel) << 12

	w := []byte{regConfig, 0, 0}
	binary.BigEndian.PutUint16(w[1:], cfg)
	if err := a.dev.Tx(w, nil); err != nil {
		return 0, fmt.Errorf("write ADS1115 config: %w", err)
	}

	time.Sleep(conversionDelay)

	r := make([]byte, 2)
	if err := a.dev.Tx([]byte{regConversion}, r); err != nil {
		return 0, fmt.Errorf("read ADS1115 conversion: %w", err)
	}

	return Normalize(int16(binary.BigEndian.Uint16(r)), a.invert), nil
}

// Close releases the I2C bus.
func (a *ADS1115) Close() error {
	if a.bus == nil {
		return errors.New("adc: not open")
	}
	if err := a.bus.Close(); err != nil {
		return fmt.Errorf("close i2c bus: %w", err)
	}
	a.bus = nil
	return nil
}
