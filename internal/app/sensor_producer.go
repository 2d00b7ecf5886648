// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relabs-tech/eink_station/internal/clock"
	"github.com/relabs-tech/eink_station/internal/domain"
	"github.com/relabs-tech/eink_station/internal/fault"
	"github.com/relabs-tech/eink_station/internal/sensors"
)

// SensorWarmup is the settle time between configuring the sensor and the
// first read.
const SensorWarmup = 10 * time.Millisecond

// SensorProducer samples the sensor on rounded wall-clock boundaries and
// pushes readings to Out. A broken sensor never stalls it: failed reads are
// replaced by synthetic samples.
type SensorProducer struct {
	Sensor       sensors.Sensor
	Oversampling sensors.Oversampling
	Clock        *clock.Clock
	Timer        clockwork.Clock
	Period       time.Duration
	Rand         *rand.Rand
	Out          chan<- domain.Reading
}

// Run returns only when ctx ends.
func (p *SensorProducer) Run(ctx context.Context) error {
	log.Printf("sensor: initializing %s", p.Sensor)
	if err := p.Sensor.Init(); err != nil {
		log.Printf("sensor: Warning: could not initialize sensor: %v", fault.Wrap(fault.Sensor, "init", err))
	} else if err := p.Sensor.Configure(p.Oversampling, sensors.ModeNormal); err != nil {
		log.Printf("sensor: Warning: could not configure sensor: %v", fault.Wrap(fault.Sensor, "configure", err))
	}

	if err := p.wait(ctx, SensorWarmup); err != nil {
		return err
	}

	for {
		if err := p.sampleAndSend(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("sensor: could not sample sensor: %v", err)
		}

		d := p.Clock.NextRoundedWakeup(p.Period)
		log.Printf("sensor: wait %s for next sample", d.Round(time.Millisecond))
		if err := p.wait(ctx, d); err != nil {
			return err
		}
	}
}

func (p *SensorProducer) sampleAndSend(ctx context.Context) error {
	now, err := p.Clock.Now()
	if err != nil {
		return err
	}

	r := domain.Reading{Time: now}
	r.Sample, err = p.read()
	if err != nil {
		log.Printf("sensor: Warning: cannot read sample, using a random one: %v", err)
		r.Sample = domain.RandomSample(p.Rand)
		r.Synthetic = true
	}

	select {
	case p.Out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *SensorProducer) read() (domain.Sample, error) {
	raw, err := p.Sensor.ReadSample()
	if err != nil {
		return domain.Sample{}, fault.Wrap(fault.Sensor, "read sample", err)
	}
	s, err := domain.FromRaw(raw)
	if err != nil {
		return domain.Sample{}, fault.Wrap(fault.Sensor, "convert sample", err)
	}
	return s, nil
}

func (p *SensorProducer) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.Timer.After(d):
		return nil
	}
}
