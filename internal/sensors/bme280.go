// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers/bme280"

	"github.com/relabs-tech/eink_station/internal/domain"
)

// TinyBME280 drives a BME280 with the TinyGo driver over a periph I2C bus.
// It is the same code path the station runs on microcontrollers.
type TinyBME280 struct {
	dev bme280.Device
}

func NewTinyBME280(bus i2c.Bus, addr uint16) *TinyBME280 {
	dev := bme280.New(bus)
	if addr != 0 {
		dev.Address = addr
	}
	return &TinyBME280{dev: dev}
}

func (s *TinyBME280) Init() error {
	if !s.dev.Connected() {
		return fmt.Errorf("bme280 at 0x%02X: chip id mismatch", s.dev.Address)
	}
	s.dev.Configure()
	return nil
}

func (s *TinyBME280) Configure(o Oversampling, m Mode) error {
	ov := map[Oversampling]bme280.Oversampling{
		O1x: bme280.Sampling1X, O2x: bme280.Sampling2X, O4x: bme280.Sampling4X,
		O8x: bme280.Sampling8X, O16x: bme280.Sampling16X,
	}[o]
	mode := bme280.ModeNormal
	if m == ModeForced {
		mode = bme280.ModeForced
	}
	s.dev.ConfigureWithSettings(bme280.Config{
		Temperature: ov,
		Pressure:    ov,
		Humidity:    ov,
		Mode:        mode,
		Period:      bme280.Period1000ms,
		IIR:         bme280.Coeff0,
	})
	return nil
}

// ReadSample converts the fixed point driver values: milli-°C, milli-Pa
// and hundredths of a percent.
func (s *TinyBME280) ReadSample() (domain.RawSample, error) {
	mc, err := s.dev.ReadTemperature()
	if err != nil {
		return domain.RawSample{}, fmt.Errorf("bme280 temperature: %w", err)
	}
	mpa, err := s.dev.ReadPressure()
	if err != nil {
		return domain.RawSample{}, fmt.Errorf("bme280 pressure: %w", err)
	}
	ch, err := s.dev.ReadHumidity()
	if err != nil {
		return domain.RawSample{}, fmt.Errorf("bme280 humidity: %w", err)
	}
	t := physic.ZeroCelsius + physic.Temperature(mc)*physic.MilliCelsius
	p := physic.Pressure(mpa) * physic.MilliPascal
	h := physic.RelativeHumidity(ch) * physic.PercentRH / 100
	return domain.RawSample{Temperature: &t, Pressure: &p, Humidity: &h}, nil
}

func (s *TinyBME280) String() string {
	return fmt.Sprintf("bme280@0x%02X", s.dev.Address)
}
