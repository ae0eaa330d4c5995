// Package ina219 is a minimal driver for the TI INA219 power monitor
// used to watch the drive battery. Current is derived from the shunt
// voltage and the known shunt resistance, so the calibration register
// is left untouched.
package ina219

import (
	"fmt"

	"rover-ng/internal/i2c"
)

const (
	addrDefault = 0x40

	regConfig    = 0x00
	regShuntVolt = 0x01
	regBusVolt   = 0x02

	configReset   = 0x8000
	configDefault = 0x399F

	// Bus voltage register: bits 15..3 are the reading, LSB 4 mV.
	busVoltLSB = 0.004
	// Shunt voltage register: signed, LSB 10 uV.
	shuntVoltLSB = 0.00001
)

type Config struct {
	ShuntOhms float64 // 0 defaults to 0.1

	// Pack voltage range for the charge estimate. Defaults cover a
	// 3S lithium pack (9.0 to 12.6 V).
	EmptyVolts float64
	FullVolts  float64
}

type Reading struct {
	BusVolts   float64 `json:"bus_volts"`
	ShuntVolts float64 `json:"shunt_volts"`
	CurrentA   float64 `json:"current_a"`
	Percent    float64 `json:"percent"`
}

type regIO interface {
	ReadRegU16(reg byte) (uint16, error)
	WriteRegU16(reg byte, value uint16) error
}

type Device struct {
	dev regIO
	cfg Config
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, cfg Config) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("ina219: dev is nil")
	}
	return newWithIO(dev, cfg)
}

func newWithIO(dev regIO, cfg Config) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("ina219: dev is nil")
	}
	if cfg.ShuntOhms == 0 {
		cfg.ShuntOhms = 0.1
	}
	if cfg.EmptyVolts == 0 {
		cfg.EmptyVolts = 9.0
	}
	if cfg.FullVolts == 0 {
		cfg.FullVolts = 12.6
	}
	d := &Device{dev: dev, cfg: cfg}

	if err := d.dev.WriteRegU16(regConfig, configReset); err != nil {
		return nil, fmt.Errorf("ina219: reset failed: %w", err)
	}
	if err := d.dev.WriteRegU16(regConfig, configDefault); err != nil {
		return nil, fmt.Errorf("ina219: config write failed: %w", err)
	}

	// Sanity check the bus voltage register is readable.
	if _, err := d.dev.ReadRegU16(regBusVolt); err != nil {
		return nil, fmt.Errorf("ina219: probe read failed: %w", err)
	}

	return d, nil
}

// Read returns the current battery state.
func (d *Device) Read() (Reading, error) {
	raw, err := d.dev.ReadRegU16(regBusVolt)
	if err != nil {
		return Reading{}, fmt.Errorf("ina219: bus voltage read failed: %w", err)
	}
	busV := float64(raw>>3) * busVoltLSB

	rawShunt, err := d.dev.ReadRegU16(regShuntVolt)
	if err != nil {
		return Reading{}, fmt.Errorf("ina219: shunt voltage read failed: %w", err)
	}
	shuntV := float64(int16(rawShunt)) * shuntVoltLSB

	pct := (busV - d.cfg.EmptyVolts) / (d.cfg.FullVolts - d.cfg.EmptyVolts) * 100.0
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return Reading{
		BusVolts:   busV,
		ShuntVolts: shuntV,
		CurrentA:   shuntV / d.cfg.ShuntOhms,
		Percent:    pct,
	}, nil
}
