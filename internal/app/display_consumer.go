// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"

	"github.com/relabs-tech/eink_station/internal/dashboard"
	"github.com/relabs-tech/eink_station/internal/domain"
	"github.com/relabs-tech/eink_station/internal/epaper"
	"github.com/relabs-tech/eink_station/internal/fault"
	"github.com/relabs-tech/eink_station/internal/retained"
)

// Publisher forwards readings to a remote service.
type Publisher interface {
	Publish(r domain.Reading) error
}

// DisplayConsumer records each reading in the retained history and shows
// the most recent one on the panel.
type DisplayConsumer struct {
	Display   *epaper.Dev
	Rotation  epaper.Rotation
	History   *retained.History
	In        <-chan domain.Reading
	Publisher Publisher // optional
}

// Run returns only when ctx ends. If the panel cannot be initialized the
// consumer keeps recording readings without drawing them.
func (c *DisplayConsumer) Run(ctx context.Context) error {
	headless := false
	if c.Display == nil {
		headless = true
	} else {
		log.Printf("display: initializing %s", c.Display)
		if err := c.Display.Init(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("display: cannot initialize display, running headless: %v",
				fault.Wrap(fault.DisplayHardware, "init", err))
			headless = true
		}
	}

	for {
		log.Printf("display: wait for message from sensor")
		var r domain.Reading
		select {
		case <-ctx.Done():
			c.release()
			return ctx.Err()
		case r = <-c.In:
		}

		c.History.Push(r)
		logReading(r)

		if !headless {
			// A refresh that has started is allowed to finish, bounded by
			// the driver's busy timeout.
			if err := c.report(context.WithoutCancel(ctx), r); err != nil {
				log.Printf("display: could not report sample: %v", err)
			}
		}

		if c.Publisher != nil {
			if err := c.Publisher.Publish(r); err != nil {
				log.Printf("display: Warning: publish failed: %v", err)
			}
		}
	}
}

func (c *DisplayConsumer) report(ctx context.Context, r domain.Reading) error {
	// A failed transfer leaves the controller in reset.
	if c.Display.State() == epaper.StateReset {
		log.Printf("display: re-initializing controller")
		if err := c.Display.Init(ctx); err != nil {
			return fault.Wrap(fault.DisplayRender, "re-init", err)
		}
	}

	latest, ok := c.History.Latest()
	if !ok {
		return nil
	}
	buf := c.Display.NewBuffer()
	buf.SetRotation(c.Rotation)
	if err := dashboard.Draw(buf, r.Time, latest, c.History.All()); err != nil {
		return fault.Wrap(fault.DisplayRender, "draw dashboard", err)
	}
	if err := c.Display.Transfer(ctx, buf); err != nil {
		return fault.Wrap(fault.DisplayRender, "transfer", err)
	}
	return nil
}

// release puts an idle controller into deep sleep before power-down.
func (c *DisplayConsumer) release() {
	if c.Display == nil || c.Display.State() != epaper.StateIdle {
		return
	}
	if _, err := c.Display.Release(context.Background()); err != nil {
		log.Printf("display: Warning: release: %v", err)
	}
}

func logReading(r domain.Reading) {
	tag := ""
	if r.Synthetic {
		tag = " (synthetic)"
	}
	log.Printf("display: received sample%s at %s", tag, r.Time.Format("2006-01-02 15:04:05"))
	log.Printf("display:  temperature %.2f C", r.Celsius())
	log.Printf("display:  humidity    %.2f %%", r.Percent())
	log.Printf("display:  pressure    %.2f hPa", r.HPa())
}
