// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/eink_station/internal/clock"
	"github.com/relabs-tech/eink_station/internal/config"
	"github.com/relabs-tech/eink_station/internal/epaper"
	"github.com/relabs-tech/eink_station/internal/fault"
	"github.com/relabs-tech/eink_station/internal/network"
	"github.com/relabs-tech/eink_station/internal/panelsim"
	"github.com/relabs-tech/eink_station/internal/power"
	"github.com/relabs-tech/eink_station/internal/retained"
	"github.com/relabs-tech/eink_station/internal/sensors"
	"github.com/relabs-tech/eink_station/internal/timesource"
)

// RunStation builds the station from the global configuration and runs one
// awake window.
func RunStation() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not initialized")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region, err := retained.OpenFile(cfg.RetainedPath)
	if err != nil {
		return fault.Wrap(fault.Configuration, "open retained region", err)
	}
	defer region.Close()
	store, err := retained.Open(region)
	if err != nil {
		return fault.Wrap(fault.Configuration, "open retained region", err)
	}

	if needsHost(cfg) {
		if _, err := host.Init(); err != nil {
			return fault.Wrap(fault.Configuration, "initialize periph", err)
		}
	}

	timer := clockwork.NewRealClock()

	sensor, closeSensor, err := OpenSensor(cfg)
	if err != nil {
		return fault.Wrap(fault.Configuration, "open sensor", err)
	}
	defer closeSensor()

	display, closeDisplay, err := openDisplay(cfg, timer)
	if err != nil {
		// Display hardware trouble only costs the picture.
		log.Printf("station: Warning: %v", fault.Wrap(fault.DisplayHardware, "open display", err))
		display, closeDisplay = nil, func() {}
	}
	defer closeDisplay()

	rotation, err := Rotation(cfg.DisplayRotation)
	if err != nil {
		return fault.Wrap(fault.Configuration, "display rotation", err)
	}

	st := &Station{
		Store:          store,
		Timer:          timer,
		Source:         NewTimeSource(cfg),
		Link:           newLink(cfg),
		WiFi:           network.Credentials{SSID: cfg.WiFiSSID, Password: cfg.WiFiPassword},
		Sleeper:        &power.Reexec{Clock: timer},
		Sensor:         sensor,
		Oversampling:   sensors.Oversampling(cfg.SensorOversampling),
		Display:        display,
		Rotation:       rotation,
		Rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
		SamplingPeriod: cfg.SamplingInterval(),
		AwakePeriod:    cfg.AwakeWindow(),
		DeepSleep:      cfg.DeepSleep(),
	}

	if cfg.MQTTFeedPrefix != "" {
		client := NewMQTTClient(cfg)
		defer client.Disconnect(250)
		st.Publisher = &FeedPublisher{Client: client, Username: cfg.MQTTUsername, Prefix: cfg.MQTTFeedPrefix}
		log.Printf("station: publishing readings to %s/feeds/%s.*", cfg.MQTTUsername, cfg.MQTTFeedPrefix)
	}

	if cfg.ColdLEDPin != "" {
		if p := gpioreg.ByName(cfg.ColdLEDPin); p != nil {
			st.ColdLED = p
		} else {
			log.Printf("station: Warning: cold LED pin %q not found", cfg.ColdLEDPin)
		}
	}

	return st.Run(ctx)
}

func needsHost(cfg *config.Config) bool {
	switch cfg.SensorDriver {
	case "bmxx80", "tinygo-bme280":
		return true
	}
	return !cfg.DisplaySimulated || cfg.ColdLEDPin != ""
}

// OpenSensor opens the configured sensor backend. host.Init must have been
// called for the bus backed drivers.
func OpenSensor(cfg *config.Config) (sensors.Sensor, func(), error) {
	switch cfg.SensorDriver {
	case "mock":
		return &sensors.Mock{}, func() {}, nil
	case "failing":
		return sensors.Failing{}, func() {}, nil
	}
	bus, err := i2creg.Open(cfg.SensorI2CBus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}
	closer := func() {
		if err := bus.Close(); err != nil {
			log.Printf("sensor: Warning: close bus: %v", err)
		}
	}
	if cfg.SensorDriver == "tinygo-bme280" {
		return sensors.NewTinyBME280(bus, cfg.SensorI2CAddr), closer, nil
	}
	return sensors.NewBMXX80(bus, cfg.SensorI2CAddr), closer, nil
}

// displayOpts builds the driver options. Edge waits are only enabled when the
// BUSY pin accepted edge detection.
func displayOpts(cfg *config.Config, timer clockwork.Clock, hw epaper.Hardware) *epaper.Opts {
	o := epaper.DefaultOpts
	o.Width, o.Height = cfg.DisplayWidth, cfg.DisplayHeight
	o.ChunkSize = cfg.DisplayChunkSize
	o.BusyTimeout = time.Duration(cfg.DisplayBusyTimeout) * time.Second
	o.Clock = timer
	o.BusyEdge = hw.BusyEdge
	if cfg.DisplayWriteMode == "individual" {
		o.WriteMode = epaper.Individual
	}
	return &o
}

func openDisplay(cfg *config.Config, timer clockwork.Clock) (*epaper.Dev, func(), error) {
	if cfg.DisplaySimulated {
		panel := panelsim.New(cfg.DisplayWidth, cfg.DisplayHeight)
		hw := panel.Hardware()
		dev, err := epaper.New(hw, displayOpts(cfg, timer, hw))
		if err != nil {
			return nil, nil, err
		}
		closer := func() {}
		if cfg.PanelWebPort > 0 {
			closer = servePanel(panel, cfg.PanelWebPort)
		}
		return dev, closer, nil
	}

	hw, closePort, err := epaper.OpenPeriph(epaper.PeriphConfig{
		SPIDevice: cfg.DisplaySPIDevice,
		MaxHz:     physic.Frequency(cfg.DisplaySPIHz) * physic.Hertz,
		BusyPin:   cfg.DisplayBusyPin,
		ResetPin:  cfg.DisplayRSTPin,
		DCPin:     cfg.DisplayDCPin,
	})
	if err != nil {
		return nil, nil, err
	}
	if !hw.BusyEdge {
		log.Printf("display: Warning: busy pin %s has no edge detection, polling", cfg.DisplayBusyPin)
	}
	dev, err := epaper.New(hw, displayOpts(cfg, timer, hw))
	if err != nil {
		closePort()
		return nil, nil, err
	}
	return dev, func() {
		if err := closePort(); err != nil {
			log.Printf("display: Warning: close SPI: %v", err)
		}
	}, nil
}

func servePanel(panel *panelsim.Panel, port int) func() {
	viewer := NewPanelViewer(panel)
	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: viewer.Handler()}
	go func() {
		log.Printf("panel: web viewer listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("panel: web server error: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// Rotation converts degrees to a buffer rotation.
func Rotation(deg int) (epaper.Rotation, error) {
	switch deg {
	case 0:
		return epaper.Rotate0, nil
	case 90:
		return epaper.Rotate90, nil
	case 180:
		return epaper.Rotate180, nil
	case 270:
		return epaper.Rotate270, nil
	}
	return 0, fmt.Errorf("invalid rotation %d", deg)
}

// NewTimeSource returns the configured clock source.
func NewTimeSource(cfg *config.Config) clock.Source {
	httpClient := &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second}
	switch cfg.TimeSource {
	case "adafruitio":
		url := cfg.TimeURL
		if url == timesource.DefaultWorldTimeURL {
			url = timesource.DefaultAdafruitURL
		}
		return &timesource.AdafruitIO{URL: url, Client: httpClient, Offset: cfg.TimeZoneOffset}
	case "adafruitio-mqtt":
		return &timesource.AdafruitMQTT{Client: NewMQTTClient(cfg), Offset: cfg.TimeZoneOffset}
	case "gps":
		return timesource.NewSerialGPS(cfg.GPSSerialPort, uint(cfg.GPSBaudRate), cfg.TimeZoneOffset)
	}
	return &timesource.WorldTimeAPI{URL: cfg.TimeURL, Client: httpClient}
}

func newLink(cfg *config.Config) network.Link {
	if cfg.WiFiSSID == "" && cfg.NetworkInterface == "" {
		return network.NopLink{}
	}
	return network.NewHost(cfg.NetworkInterface, time.Minute)
}
