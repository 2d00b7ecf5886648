// Package sensors provides temperature, humidity and pressure sources.
package sensors

import (
	"fmt"

	"github.com/relabs-tech/eink_station/internal/domain"
)

// Oversampling is the number of samples averaged per measurement.
type Oversampling int

const (
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 4
	O8x  Oversampling = 8
	O16x Oversampling = 16
)

// ParseOversampling accepts 1, 2, 4, 8 or 16.
func ParseOversampling(n int) (Oversampling, error) {
	switch o := Oversampling(n); o {
	case O1x, O2x, O4x, O8x, O16x:
		return o, nil
	}
	return 0, fmt.Errorf("sensors: invalid oversampling %d", n)
}

// Mode selects continuous or on-demand measurement.
type Mode int

const (
	ModeNormal Mode = iota
	ModeForced
)

func (m Mode) String() string {
	if m == ModeForced {
		return "forced"
	}
	return "normal"
}

// Sensor is an environmental sensor. Register level protocol is left to
// the backend.
type Sensor interface {
	Init() error
	Configure(o Oversampling, m Mode) error
	ReadSample() (domain.RawSample, error)
	String() string
}
