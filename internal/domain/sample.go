package domain

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Hectopascal is 100 Pa.
const Hectopascal = 100 * physic.Pascal

// Sample is a single environmental measurement with typed units.
// The zero value is a never-initialized slot.
type Sample struct {
	Temperature physic.Temperature      `json:"temperature"`
	Humidity    physic.RelativeHumidity `json:"humidity"`
	Pressure    physic.Pressure         `json:"pressure"`
}

// Celsius returns the temperature in °C.
func (s Sample) Celsius() float64 { return s.Temperature.Celsius() }

// Percent returns the relative humidity in %.
func (s Sample) Percent() float64 {
	return float64(s.Humidity) / float64(physic.PercentRH)
}

// HPa returns the pressure in hPa.
func (s Sample) HPa() float64 {
	return float64(s.Pressure) / float64(Hectopascal)
}

func (s Sample) String() string {
	return fmt.Sprintf("Temperature: %.1f °C, Humidity: %.0f %%, Pressure: %.1f hPa",
		s.Celsius(), s.Percent(), s.HPa())
}

// Reading is a timestamped sample. Synthetic is set when the sample was
// generated because the sensor could not be read.
type Reading struct {
	Time      time.Time `json:"time"`
	Sample    `json:"sample"`
	Synthetic bool `json:"synthetic,omitempty"`
}

// ErrMissingMeasurement is returned by FromRaw when a quantity is absent.
var ErrMissingMeasurement = errors.New("domain: missing measurement")

// RawSample is what a sensor driver reports. A nil field means the device
// did not provide that quantity.
type RawSample struct {
	Temperature *physic.Temperature
	Humidity    *physic.RelativeHumidity
	Pressure    *physic.Pressure
}

// FromRaw requires all three quantities to be present.
func FromRaw(raw RawSample) (Sample, error) {
	switch {
	case raw.Temperature == nil:
		return Sample{}, fmt.Errorf("%w: temperature", ErrMissingMeasurement)
	case raw.Humidity == nil:
		return Sample{}, fmt.Errorf("%w: humidity", ErrMissingMeasurement)
	case raw.Pressure == nil:
		return Sample{}, fmt.Errorf("%w: pressure", ErrMissingMeasurement)
	}
	return Sample{
		Temperature: *raw.Temperature,
		Humidity:    *raw.Humidity,
		Pressure:    *raw.Pressure,
	}, nil
}

// Fallback ranges for synthetic samples.
const (
	MinFallbackCelsius = 15.0
	MaxFallbackCelsius = 30.0
	MinFallbackPercent = 20.0
	MaxFallbackPercent = 80.0
	MinFallbackHPa     = 990.0
	MaxFallbackHPa     = 1010.0
)

// RandomSample draws a plausible sample from the fallback ranges.
func RandomSample(rng *rand.Rand) Sample {
	c := MinFallbackCelsius + rng.Float64()*(MaxFallbackCelsius-MinFallbackCelsius)
	h := MinFallbackPercent + rng.Float64()*(MaxFallbackPercent-MinFallbackPercent)
	p := MinFallbackHPa + rng.Float64()*(MaxFallbackHPa-MinFallbackHPa)
	return Sample{
		Temperature: CelsiusToTemperature(c),
		Humidity:    physic.RelativeHumidity(h * float64(physic.PercentRH)),
		Pressure:    physic.Pressure(p * float64(Hectopascal)),
	}
}

// CelsiusToTemperature converts °C to a physic.Temperature.
func CelsiusToTemperature(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Celsius))
}
