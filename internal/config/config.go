// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds all application configuration values.
type Config struct {
	// Network
	WiFiSSID         string
	WiFiPassword     string
	NetworkInterface string

	// Time source: "worldtimeapi", "adafruitio", "adafruitio-mqtt" or "gps"
	TimeSource     string
	TimeURL        string
	TimeZoneOffset int32 // seconds, for sources that only know UTC
	HTTPTimeout    int   // seconds

	// MQTT (Adafruit IO)
	MQTTBroker     string
	MQTTUsername   string
	MQTTKey        string
	MQTTClientID   string
	MQTTFeedPrefix string // empty disables publishing readings

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Sensor: "bmxx80", "tinygo-bme280", "mock" or "failing"
	SensorDriver       string
	SensorI2CBus       string
	SensorI2CAddr      uint16
	SensorOversampling int

	// Display hardware
	DisplaySPIDevice string
	DisplayBusyPin   string
	DisplayRSTPin    string
	DisplayDCPin     string
	DisplaySPIHz     int64

	// Display behaviour
	DisplayWidth       int
	DisplayHeight      int
	DisplayWriteMode   string // "chunked" or "individual"
	DisplayChunkSize   int
	DisplayRotation    int // degrees: 0, 90, 180, 270
	DisplayBusyTimeout int // seconds
	DisplaySimulated   bool
	PanelWebPort       int

	ColdLEDPin string

	// Timing, seconds
	SamplingPeriod    int
	AwakePeriod       int
	DeepSleepDuration int

	RetainedPath string
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is not present.
func Default() *Config {
	return &Config{
		NetworkInterface: "wlan0",

		TimeSource:  "worldtimeapi",
		TimeURL:     "https://worldtimeapi.org/api/timezone/Europe/Copenhagen.txt",
		HTTPTimeout: 10,

		MQTTBroker:   "tcp://io.adafruit.com:1883",
		MQTTClientID: "eink-station-" + uuid.NewString(),

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		SensorDriver:       "bmxx80",
		SensorI2CAddr:      0x76,
		SensorOversampling: 1,

		DisplaySPIDevice: "/dev/spidev0.0",
		DisplayBusyPin:   "GPIO24",
		DisplayRSTPin:    "GPIO17",
		DisplayDCPin:     "GPIO25",
		DisplaySPIHz:     4000000,

		DisplayWidth:       200,
		DisplayHeight:      200,
		DisplayWriteMode:   "chunked",
		DisplayChunkSize:   4096,
		DisplayBusyTimeout: 30,

		SamplingPeriod:    60,
		AwakePeriod:       300,
		DeepSleepDuration: 300,

		RetainedPath: "/var/lib/eink-station/retained.bin",
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines. Blank lines and lines starting with # are
// skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func atoi(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Network
	case "WIFI_SSID":
		c.WiFiSSID = value
	case "WIFI_PASSWORD":
		c.WiFiPassword = value
	case "NETWORK_INTERFACE":
		c.NetworkInterface = value

	// Time source
	case "TIME_SOURCE":
		switch value {
		case "worldtimeapi", "adafruitio", "adafruitio-mqtt", "gps":
			c.TimeSource = value
		default:
			return fmt.Errorf("TIME_SOURCE must be worldtimeapi, adafruitio, adafruitio-mqtt or gps, got %q", value)
		}
	case "TIME_URL":
		c.TimeURL = value
	case "TIME_ZONE_OFFSET":
		// 25h59m59s either way
		var off int
		off, err = atoi(key, value, -93599, 93599)
		c.TimeZoneOffset = int32(off)
	case "HTTP_TIMEOUT":
		c.HTTPTimeout, err = atoi(key, value, 1, 300)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_USERNAME":
		c.MQTTUsername = value
	case "MQTT_KEY":
		c.MQTTKey = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_FEED_PREFIX":
		c.MQTTFeedPrefix = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = atoi(key, value, 1, 1000000)

	// Sensor
	case "SENSOR_DRIVER":
		switch value {
		case "bmxx80", "tinygo-bme280", "mock", "failing":
			c.SensorDriver = value
		default:
			return fmt.Errorf("SENSOR_DRIVER must be bmxx80, tinygo-bme280, mock or failing, got %q", value)
		}
	case "SENSOR_I2C_BUS":
		c.SensorI2CBus = value
	case "SENSOR_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 7)
		if perr != nil {
			return fmt.Errorf("invalid SENSOR_I2C_ADDR %q: %w", value, perr)
		}
		c.SensorI2CAddr = uint16(addr)
	case "SENSOR_OVERSAMPLING":
		c.SensorOversampling, err = atoi(key, value, 1, 16)

	// Display hardware
	case "DISPLAY_SPI_DEVICE":
		c.DisplaySPIDevice = value
	case "DISPLAY_BUSY_PIN":
		c.DisplayBusyPin = value
	case "DISPLAY_RST_PIN":
		c.DisplayRSTPin = value
	case "DISPLAY_DC_PIN":
		c.DisplayDCPin = value
	case "DISPLAY_SPI_HZ":
		hz, perr := strconv.ParseInt(value, 10, 64)
		if perr != nil || hz <= 0 {
			return fmt.Errorf("invalid DISPLAY_SPI_HZ %q", value)
		}
		c.DisplaySPIHz = hz

	// Display behaviour
	case "DISPLAY_WIDTH":
		c.DisplayWidth, err = atoi(key, value, 8, 4096)
	case "DISPLAY_HEIGHT":
		c.DisplayHeight, err = atoi(key, value, 1, 4096)
	case "DISPLAY_WRITE_MODE":
		if value != "chunked" && value != "individual" {
			return fmt.Errorf("DISPLAY_WRITE_MODE must be chunked or individual, got %q", value)
		}
		c.DisplayWriteMode = value
	case "DISPLAY_CHUNK_SIZE":
		c.DisplayChunkSize, err = atoi(key, value, 1, 1<<20)
	case "DISPLAY_ROTATION":
		c.DisplayRotation, err = atoi(key, value, 0, 270)
		if err == nil && c.DisplayRotation%90 != 0 {
			return fmt.Errorf("DISPLAY_ROTATION must be 0, 90, 180 or 270, got %d", c.DisplayRotation)
		}
	case "DISPLAY_BUSY_TIMEOUT":
		c.DisplayBusyTimeout, err = atoi(key, value, 1, 600)
	case "DISPLAY_SIMULATED":
		c.DisplaySimulated, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_SIMULATED %q: %w", value, err)
		}
	case "PANEL_WEB_PORT":
		c.PanelWebPort, err = atoi(key, value, 0, 65535)

	case "COLD_LED_PIN":
		c.ColdLEDPin = value

	// Timing
	case "SAMPLING_PERIOD":
		c.SamplingPeriod, err = atoi(key, value, 1, 86400)
	case "AWAKE_PERIOD":
		c.AwakePeriod, err = atoi(key, value, 1, 86400)
	case "DEEP_SLEEP_DURATION":
		c.DeepSleepDuration, err = atoi(key, value, 1, 7*86400)

	case "RETAINED_PATH":
		c.RetainedPath = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.DisplayWidth%8 != 0 {
		return fmt.Errorf("DISPLAY_WIDTH must be a multiple of 8, got %d", c.DisplayWidth)
	}
	switch c.SensorOversampling {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("SENSOR_OVERSAMPLING must be 1, 2, 4, 8 or 16, got %d", c.SensorOversampling)
	}
	if (c.TimeSource == "adafruitio-mqtt" || c.MQTTFeedPrefix != "") && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TimeSource == "gps" && c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required")
	}
	if c.WiFiPassword != "" && c.WiFiSSID == "" {
		return fmt.Errorf("WIFI_PASSWORD is set without WIFI_SSID")
	}
	if c.RetainedPath == "" {
		return fmt.Errorf("RETAINED_PATH is required")
	}
	return nil
}

func (c *Config) SamplingInterval() time.Duration {
	return time.Duration(c.SamplingPeriod) * time.Second
}

func (c *Config) AwakeWindow() time.Duration {
	return time.Duration(c.AwakePeriod) * time.Second
}

func (c *Config) DeepSleep() time.Duration {
	return time.Duration(c.DeepSleepDuration) * time.Second
}

// InitGlobal initializes the global configuration from file. An empty path
// selects Default. Only the first call has an effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
