package epaper

import (
	"fmt"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

var _ display.Drawer = (*Dev)(nil)

// PeriphConfig names the host resources wired to the panel.
type PeriphConfig struct {
	SPIDevice string
	MaxHz     physic.Frequency
	BusyPin   string
	ResetPin  string
	DCPin     string
}

// OpenPeriph opens the SPI port and GPIO pins through the periph registries.
// host.Init must have been called. The returned closer releases the port.
// Hardware.BusyEdge tells whether the BUSY pin accepted edge detection.
func OpenPeriph(cfg PeriphConfig) (Hardware, func() error, error) {
	port, err := spireg.Open(cfg.SPIDevice)
	if err != nil {
		return Hardware{}, nil, fmt.Errorf("epaper: open SPI %q: %w", cfg.SPIDevice, err)
	}
	c, err := port.Connect(cfg.MaxHz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return Hardware{}, nil, fmt.Errorf("epaper: connect SPI: %w", err)
	}

	busy := gpioreg.ByName(cfg.BusyPin)
	if busy == nil {
		port.Close()
		return Hardware{}, nil, fmt.Errorf("epaper: busy pin %q not found", cfg.BusyPin)
	}
	edge, err := configureBusy(busy)
	if err != nil {
		port.Close()
		return Hardware{}, nil, err
	}

	out := func(name string, l gpio.Level) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("epaper: gpio %q not found", name)
		}
		if err := p.Out(l); err != nil {
			return nil, fmt.Errorf("epaper: gpio %s: %w", p, err)
		}
		return p, nil
	}
	rst, err := out(cfg.ResetPin, gpio.High)
	if err != nil {
		port.Close()
		return Hardware{}, nil, err
	}
	dc, err := out(cfg.DCPin, gpio.Low)
	if err != nil {
		port.Close()
		return Hardware{}, nil, err
	}
	return Hardware{Conn: c, Busy: busy, Reset: rst, DC: dc, BusyEdge: edge}, port.Close, nil
}

// configureBusy sets the BUSY pin as input and reports whether edge
// detection could be enabled. Not every GPIO driver supports edges.
func configureBusy(busy gpio.PinIn) (bool, error) {
	if err := busy.In(gpio.PullDown, gpio.BothEdges); err == nil {
		return true, nil
	}
	if err := busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return false, fmt.Errorf("epaper: busy pin %s: %w", busy, err)
	}
	return false, nil
}
