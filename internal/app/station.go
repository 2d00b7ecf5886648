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
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/eink_station/internal/clock"
	"github.com/relabs-tech/eink_station/internal/domain"
	"github.com/relabs-tech/eink_station/internal/epaper"
	"github.com/relabs-tech/eink_station/internal/fault"
	"github.com/relabs-tech/eink_station/internal/network"
	"github.com/relabs-tech/eink_station/internal/power"
	"github.com/relabs-tech/eink_station/internal/retained"
	"github.com/relabs-tech/eink_station/internal/sensors"
)

// ChannelCapacity bounds the readings in flight between sensor and display.
const ChannelCapacity = 3

// Station is one awake window of the node: restore, sample and render for
// AwakePeriod, persist, sleep.
type Station struct {
	Store   *retained.Store
	Timer   clockwork.Clock
	Source  clock.Source
	Link    network.Link
	WiFi    network.Credentials
	Sleeper power.Sleeper

	Sensor       sensors.Sensor
	Oversampling sensors.Oversampling
	Display      *epaper.Dev // nil runs headless
	Rotation     epaper.Rotation
	Publisher    Publisher        // optional
	ColdLED      epaper.OutputPin // optional
	Rand         *rand.Rand

	SamplingPeriod time.Duration
	AwakePeriod    time.Duration
	DeepSleep      time.Duration
}

// Run executes one awake window and ends in Sleeper.DeepSleep. With a real
// sleeper it does not return on success.
func (s *Station) Run(ctx context.Context) error {
	st, err := s.Store.Take()
	if err != nil {
		return fault.Wrap(fault.Configuration, "take retained state", err)
	}
	st.BootCount++
	log.Printf("station: boot count %d", st.BootCount)
	if st.Cold {
		log.Printf("station: cold boot, retained state initialized")
	}

	if s.ColdLED != nil {
		log.Printf("station: turn off cold LED")
		if err := s.ColdLED.Out(gpio.Low); err != nil {
			log.Printf("station: Warning: cold LED: %v", err)
		}
	}

	up := clock.NewUptime(s.Timer)
	clk, err := s.loadClock(ctx, st, up)
	if err != nil {
		// Leave the retained clock alone so the next boot synchronizes again.
		log.Printf("station: Error while running firmware: %v", err)
		if serr := s.Store.Save(st); serr != nil {
			log.Printf("station: Warning: save retained state: %v", serr)
		}
		if serr := s.Sleeper.DeepSleep(s.DeepSleep); serr != nil {
			return errors.Join(err, serr)
		}
		return err
	}

	if now, err := clk.Now(); err != nil {
		log.Printf("station: Warning: %v", err)
	} else {
		log.Printf("station: now is %s", now.Format(time.RFC3339))
	}
	log.Printf("station: history contains %d elements", st.History.Len())

	readings := make(chan domain.Reading, ChannelCapacity)
	awake, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(awake)

	consumer := &DisplayConsumer{
		Display:   s.Display,
		Rotation:  s.Rotation,
		History:   &st.History,
		In:        readings,
		Publisher: s.Publisher,
	}
	producer := &SensorProducer{
		Sensor:       s.Sensor,
		Oversampling: s.Oversampling,
		Clock:        clk,
		Timer:        s.Timer,
		Period:       s.SamplingPeriod,
		Rand:         s.Rand,
		Out:          readings,
	}
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return producer.Run(gctx) })

	log.Printf("station: stay awake for %s", s.AwakePeriod)
	select {
	case <-s.Timer.After(s.AwakePeriod):
	case <-ctx.Done():
	}

	// Join both tasks before the retained state is written.
	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("station: Warning: task ended with: %v", err)
	}

	if ctx.Err() != nil {
		// The downtime is unknown, force a synchronization on the next boot.
		st.Epoch = 0
		if err := s.Store.Save(st); err != nil {
			log.Printf("station: Warning: save retained state: %v", err)
		}
		log.Printf("station: interrupted, history saved")
		return ctx.Err()
	}

	clk.Persist(st, s.DeepSleep)
	if err := s.Store.Save(st); err != nil {
		log.Printf("station: Warning: save retained state: %v", err)
	}
	return s.Sleeper.DeepSleep(s.DeepSleep)
}

func (s *Station) loadClock(ctx context.Context, st *retained.State, up clock.Uptime) (*clock.Clock, error) {
	if clk, ok := clock.FromRetained(st, up); ok {
		log.Printf("station: clock loaded from retained memory")
		return clk, nil
	}

	log.Printf("station: connect to network")
	if err := s.Link.Connect(ctx, s.WiFi); err != nil {
		return nil, fault.Wrap(fault.Configuration, "connect network", err)
	}
	defer func() {
		log.Printf("station: request to disconnect network")
		if err := s.Link.Disconnect(); err != nil {
			log.Printf("station: Warning: %v", err)
		}
	}()

	log.Printf("station: synchronize clock from server")
	clk, err := clock.FromSource(ctx, s.Source, up)
	if err != nil {
		return nil, fmt.Errorf("load clock: %w", err)
	}
	return clk, nil
}
