// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"github.com/relabs-tech/eink_station/internal/domain"
)

var errNotInitialized = errors.New("sensors: not initialized")

// BMXX80 reads a Bosch BME280, BMP280 or BMP180 through periph. Only the
// BME280 reports humidity.
type BMXX80 struct {
	bus  i2c.Bus
	addr uint16
	opts bmxx80.Opts
	dev  *bmxx80.Dev
}

// NewBMXX80 does not touch the bus until Init.
func NewBMXX80(bus i2c.Bus, addr uint16) *BMXX80 {
	return &BMXX80{bus: bus, addr: addr, opts: bmxx80.DefaultOpts}
}

func (s *BMXX80) Init() error {
	dev, err := bmxx80.NewI2C(s.bus, s.addr, &s.opts)
	if err != nil {
		return fmt.Errorf("bmxx80 init at 0x%02X: %w", s.addr, err)
	}
	s.dev = dev
	return nil
}

// Configure re-opens the device with the new oversampling. The mode is
// ignored: periph's bmxx80 driver always runs the chip in forced mode and
// triggers a conversion on every Sense.
func (s *BMXX80) Configure(o Oversampling, _ Mode) error {
	ov := map[Oversampling]bmxx80.Oversampling{
		O1x: bmxx80.O1x, O2x: bmxx80.O2x, O4x: bmxx80.O4x, O8x: bmxx80.O8x, O16x: bmxx80.O16x,
	}[o]
	s.opts = bmxx80.Opts{Temperature: ov, Pressure: ov, Humidity: ov, Filter: bmxx80.NoFilter}
	if s.dev != nil {
		if err := s.dev.Halt(); err != nil {
			return fmt.Errorf("bmxx80 halt: %w", err)
		}
	}
	return s.Init()
}

func (s *BMXX80) ReadSample() (domain.RawSample, error) {
	if s.dev == nil {
		return domain.RawSample{}, errNotInitialized
	}
	var e physic.Env
	if err := s.dev.Sense(&e); err != nil {
		return domain.RawSample{}, fmt.Errorf("bmxx80 sense: %w", err)
	}
	raw := domain.RawSample{Temperature: &e.Temperature, Pressure: &e.Pressure}
	if strings.HasPrefix(s.dev.String(), "BME280") {
		raw.Humidity = &e.Humidity
	}
	return raw, nil
}

func (s *BMXX80) String() string {
	if s.dev != nil {
		return s.dev.String()
	}
	return fmt.Sprintf("bmxx80@0x%02X", s.addr)
}
