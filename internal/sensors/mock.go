package sensors

import (
	"errors"
	"math"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/eink_station/internal/domain"
)

// Mock produces a slow deterministic oscillation around indoor conditions.
type Mock struct {
	mu sync.Mutex
	n  int
}

func (m *Mock) Init() error                        { return nil }
func (m *Mock) Configure(Oversampling, Mode) error { return nil }
func (m *Mock) String() string                     { return "mock" }

func (m *Mock) ReadSample() (domain.RawSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phase := float64(m.n) * 2 * math.Pi / 96
	m.n++
	t := domain.CelsiusToTemperature(21 + 2*math.Sin(phase))
	h := physic.RelativeHumidity((50 + 10*math.Cos(phase)) * float64(physic.PercentRH))
	p := physic.Pressure((1005 + 3*math.Sin(phase/2)) * float64(domain.Hectopascal))
	return domain.RawSample{Temperature: &t, Humidity: &h, Pressure: &p}, nil
}

// ErrSensorOffline is returned by Failing.
var ErrSensorOffline = errors.New("sensors: sensor offline")

// Failing is a sensor that never answers.
type Failing struct{}

func (Failing) Init() error                           { return ErrSensorOffline }
func (Failing) Configure(Oversampling, Mode) error    { return ErrSensorOffline }
func (Failing) ReadSample() (domain.RawSample, error) { return domain.RawSample{}, ErrSensorOffline }
func (Failing) String() string                        { return "failing" }
