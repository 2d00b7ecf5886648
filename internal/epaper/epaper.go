// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package epaper drives SSD1681-class tri-color e-paper controllers, such
// as the 1.54" 200x200 black/white/red panel.
package epaper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Controller opcodes.
const (
	CmdDriverOutputControl = 0x01
	CmdDeepSleepMode       = 0x10
	CmdDataEntryMode       = 0x11
	CmdSoftwareReset       = 0x12
	CmdMasterActivation    = 0x20
	CmdDisplayUpdateCtrl2  = 0x22
	CmdWriteRAMBlack       = 0x24
	CmdWriteRAMChromatic   = 0x26
	CmdBorderWaveform      = 0x3C
	CmdRAMXStartEnd        = 0x44
	CmdRAMYStartEnd        = 0x45
	CmdRAMXCounter         = 0x4E
	CmdRAMYCounter         = 0x4F
)

const (
	// busyLevel is the BUSY line level while the controller is working.
	busyLevel = gpio.High

	fullRefreshWaveform = 0xf7
	borderWaveform      = 0x05
	dataEntryYDecXInc   = 0x01
)

var (
	ErrState       = errors.New("epaper: invalid state")
	ErrGeometry    = errors.New("epaper: invalid panel geometry")
	ErrBusyTimeout = errors.New("epaper: busy timeout")
	ErrBufferSize  = errors.New("epaper: buffer does not match panel")
)

// Conn is a half-duplex byte transport. spi.Conn satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// OutputPin is the subset of gpio.PinOut the driver needs.
type OutputPin interface {
	Out(l gpio.Level) error
}

// InputPin is the subset of gpio.PinIn the driver needs.
type InputPin interface {
	Read() gpio.Level
}

// EdgeWaiter is implemented by input pins that can block until the level
// changes, like gpio.PinIn configured with gpio.BothEdges.
type EdgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

// Hardware is the set of resources the driver borrows until Release.
type Hardware struct {
	Conn  Conn
	Busy  InputPin
	Reset OutputPin
	DC    OutputPin
	// BusyEdge reports that Busy was configured for edge detection.
	BusyEdge bool
}

// WriteMode selects how payloads are handed to the transport.
type WriteMode int

const (
	// Chunked splits writes into at most ChunkSize bytes per Tx.
	Chunked WriteMode = iota
	// Individual issues one Tx per byte.
	Individual
)

// Opts is the driver configuration, fixed at construction.
type Opts struct {
	Width, Height int
	WriteMode     WriteMode
	ChunkSize     int
	// BusyPoll bounds a single wait on the BUSY line.
	BusyPoll    time.Duration
	BusyTimeout time.Duration
	// BusyEdge waits on pin edges instead of sleeping between polls when the
	// BUSY pin implements EdgeWaiter.
	BusyEdge bool
	Clock    clockwork.Clock
}

// DefaultOpts matches the 1.54" 200x200 V2 panel on a Linux spidev.
var DefaultOpts = Opts{
	Width:       200,
	Height:      200,
	WriteMode:   Chunked,
	ChunkSize:   4096,
	BusyPoll:    10 * time.Millisecond,
	BusyTimeout: 30 * time.Second,
}

// State of the controller protocol.
type State int

const (
	StateReset State = iota
	StateConfigured
	StateIdle
	StateTransferring
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "Reset"
	case StateConfigured:
		return "Configured"
	case StateIdle:
		return "Idle"
	case StateTransferring:
		return "Transferring"
	case StateSleeping:
		return "Sleeping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Dev is a handle to the panel controller.
type Dev struct {
	hw    Hardware
	opts  Opts
	clk   clockwork.Clock
	state State
	chunk int

	xEnd   byte
	yStart uint16
	buf    *Buffer
}

// New validates the geometry and returns a driver in StateReset. Nothing
// is sent to the panel until Init.
func New(hw Hardware, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if hw.Conn == nil || hw.Busy == nil || hw.Reset == nil || hw.DC == nil {
		return nil, errors.New("epaper: incomplete hardware")
	}
	if o.Width <= 0 || o.Height <= 0 || o.Width%8 != 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrGeometry, o.Width, o.Height)
	}
	if o.Width/8-1 > 0xff || o.Height-1 > 0xffff {
		return nil, fmt.Errorf("%w: %dx%d exceeds controller RAM", ErrGeometry, o.Width, o.Height)
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultOpts.ChunkSize
	}
	if o.BusyPoll <= 0 {
		o.BusyPoll = DefaultOpts.BusyPoll
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultOpts.BusyTimeout
	}
	clk := o.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	chunk := o.ChunkSize
	if l, ok := hw.Conn.(conn.Limits); ok {
		if m := l.MaxTxSize(); m > 0 && m < chunk {
			chunk = m
		}
	}
	return &Dev{
		hw:     hw,
		opts:   o,
		clk:    clk,
		state:  StateReset,
		chunk:  chunk,
		xEnd:   byte(o.Width/8 - 1),
		yStart: uint16(o.Height - 1),
	}, nil
}

func (d *Dev) String() string {
	if s, ok := d.hw.Conn.(fmt.Stringer); ok {
		return "SSD1681{" + s.String() + "}"
	}
	return "SSD1681"
}

// State returns the current protocol state.
func (d *Dev) State() State { return d.state }

// Bounds returns the native panel size.
func (d *Dev) Bounds() image.Rectangle { return image.Rect(0, 0, d.opts.Width, d.opts.Height) }

// ColorModel returns the tri-color model.
func (d *Dev) ColorModel() color.Model { return Model }

// NewBuffer returns a white framebuffer sized for this panel.
func (d *Dev) NewBuffer() *Buffer { return NewBuffer(d.opts.Width, d.opts.Height) }

// Init resets and configures the controller. It is valid from StateReset and
// StateSleeping.
func (d *Dev) Init(ctx context.Context) error {
	if d.state != StateReset && d.state != StateSleeping {
		return fmt.Errorf("%w: init from %s", ErrState, d.state)
	}
	d.state = StateReset
	if err := d.hardwareReset(ctx); err != nil {
		return fmt.Errorf("epaper: hardware reset: %w", err)
	}
	if err := d.waitUntilIdle(ctx); err != nil {
		return err
	}
	if err := d.command(CmdSoftwareReset); err != nil {
		return err
	}
	if err := d.waitUntilIdle(ctx); err != nil {
		return err
	}
	y := le16(d.yStart)
	seq := []struct {
		cmd  byte
		data []byte
	}{
		{CmdDriverOutputControl, []byte{y[0], y[1], 0x01}},
		{CmdDataEntryMode, []byte{dataEntryYDecXInc}},
		{CmdRAMXStartEnd, []byte{0x00, d.xEnd}},
		{CmdRAMYStartEnd, []byte{y[0], y[1], 0x00, 0x00}},
		{CmdBorderWaveform, []byte{borderWaveform}},
		{CmdRAMXCounter, []byte{0x00}},
		{CmdRAMYCounter, []byte{y[0], y[1]}},
	}
	for _, s := range seq {
		if err := d.send(s.cmd, s.data...); err != nil {
			return fmt.Errorf("epaper: configure 0x%02X: %w", s.cmd, err)
		}
	}
	d.state = StateConfigured
	if err := d.waitUntilIdle(ctx); err != nil {
		d.state = StateReset
		return err
	}
	d.state = StateIdle
	return nil
}

// Transfer writes both planes and refreshes the panel. The chromatic plane
// is sent inverted, the controller RAM uses 1 for accent pixels.
func (d *Dev) Transfer(ctx context.Context, b *Buffer) error {
	if b.Width() != d.opts.Width || b.Height() != d.opts.Height {
		return fmt.Errorf("%w: %dx%d", ErrBufferSize, b.Width(), b.Height())
	}
	return d.transfer(ctx, b.Black(), b.Chromatic())
}

// TransferPlanes writes the given planes. A nil plane is left as is in the
// controller RAM.
func (d *Dev) TransferPlanes(ctx context.Context, black, chromatic []byte) error {
	size := PlaneSize(d.opts.Width, d.opts.Height)
	if (black != nil && len(black) != size) || (chromatic != nil && len(chromatic) != size) {
		return ErrBufferSize
	}
	return d.transfer(ctx, black, chromatic)
}

func (d *Dev) transfer(ctx context.Context, black, chromatic []byte) error {
	if err := d.begin(); err != nil {
		return err
	}
	if black != nil {
		if err := d.send(CmdWriteRAMBlack, black...); err != nil {
			return d.fail(fmt.Errorf("epaper: write black RAM: %w", err))
		}
	}
	if chromatic != nil {
		inv := make([]byte, len(chromatic))
		for i, v := range chromatic {
			inv[i] = ^v
		}
		if err := d.send(CmdWriteRAMChromatic, inv...); err != nil {
			return d.fail(fmt.Errorf("epaper: write chromatic RAM: %w", err))
		}
	}
	return d.refresh(ctx)
}

// Clear blanks the panel to white.
func (d *Dev) Clear(ctx context.Context) error {
	if err := d.begin(); err != nil {
		return err
	}
	size := PlaneSize(d.opts.Width, d.opts.Height)
	white := make([]byte, size)
	fill(white, 0xff)
	if err := d.send(CmdWriteRAMBlack, white...); err != nil {
		return d.fail(fmt.Errorf("epaper: clear black RAM: %w", err))
	}
	if err := d.send(CmdWriteRAMChromatic, make([]byte, size)...); err != nil {
		return d.fail(fmt.Errorf("epaper: clear chromatic RAM: %w", err))
	}
	return d.refresh(ctx)
}

// Refresh re-displays the current controller RAM.
func (d *Dev) Refresh(ctx context.Context) error {
	if err := d.begin(); err != nil {
		return err
	}
	return d.refresh(ctx)
}

// Draw implements display.Drawer. src is composed onto an internal buffer
// which is then transferred.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	if d.buf == nil {
		d.buf = d.NewBuffer()
	}
	draw.Draw(d.buf, r, src, sp, draw.Src)
	return d.Transfer(context.Background(), d.buf)
}

// Halt puts the controller in deep sleep. Init wakes it again.
func (d *Dev) Halt() error {
	_, err := d.Release(context.Background())
	return err
}

// Release enters deep sleep and hands the hardware back to the caller.
func (d *Dev) Release(ctx context.Context) (Hardware, error) {
	if d.state != StateIdle && d.state != StateConfigured {
		return d.hw, fmt.Errorf("%w: release from %s", ErrState, d.state)
	}
	if err := d.send(CmdDeepSleepMode, 0x01); err != nil {
		d.state = StateReset
		return d.hw, fmt.Errorf("epaper: deep sleep: %w", err)
	}
	d.state = StateSleeping
	if err := d.sleep(ctx, 200*time.Millisecond); err != nil {
		return d.hw, err
	}
	return d.hw, nil
}

func (d *Dev) begin() error {
	if d.state != StateIdle {
		return fmt.Errorf("%w: transfer from %s", ErrState, d.state)
	}
	d.state = StateTransferring
	return nil
}

// fail drops to StateReset, the controller must be initialized again.
func (d *Dev) fail(err error) error {
	d.state = StateReset
	return err
}

func (d *Dev) refresh(ctx context.Context) error {
	if err := d.send(CmdDisplayUpdateCtrl2, fullRefreshWaveform); err != nil {
		return d.fail(fmt.Errorf("epaper: update control: %w", err))
	}
	if err := d.command(CmdMasterActivation); err != nil {
		return d.fail(fmt.Errorf("epaper: master activation: %w", err))
	}
	if err := d.waitUntilIdle(ctx); err != nil {
		return d.fail(err)
	}
	d.state = StateIdle
	return nil
}

func (d *Dev) hardwareReset(ctx context.Context) error {
	steps := []struct {
		l gpio.Level
		t time.Duration
	}{
		{gpio.High, 10 * time.Millisecond},
		{gpio.Low, 10 * time.Millisecond},
		{gpio.High, 200 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.hw.Reset.Out(s.l); err != nil {
			return err
		}
		if err := d.sleep(ctx, s.t); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) busy() bool { return d.hw.Busy.Read() == busyLevel }

func (d *Dev) waitUntilIdle(ctx context.Context) error {
	if !d.busy() {
		return nil
	}
	start := d.clk.Now()
	ew, edge := d.hw.Busy.(EdgeWaiter)
	edge = edge && d.opts.BusyEdge
	for d.busy() {
		if d.clk.Since(start) >= d.opts.BusyTimeout {
			return fmt.Errorf("%w after %s", ErrBusyTimeout, d.opts.BusyTimeout)
		}
		if edge {
			if err := ctx.Err(); err != nil {
				return err
			}
			ew.WaitForEdge(d.opts.BusyPoll)
			continue
		}
		if err := d.sleep(ctx, d.opts.BusyPoll); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) sleep(ctx context.Context, t time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.clk.After(t):
		return nil
	}
}

func (d *Dev) command(c byte) error {
	if err := d.hw.DC.Out(gpio.Low); err != nil {
		return fmt.Errorf("epaper: DC low: %w", err)
	}
	return d.write([]byte{c})
}

func (d *Dev) data(b []byte) error {
	if err := d.hw.DC.Out(gpio.High); err != nil {
		return fmt.Errorf("epaper: DC high: %w", err)
	}
	return d.write(b)
}

func (d *Dev) send(c byte, payload ...byte) error {
	if err := d.command(c); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return d.data(payload)
}

func (d *Dev) write(b []byte) error {
	if d.opts.WriteMode == Individual {
		for i := range b {
			if err := d.hw.Conn.Tx(b[i:i+1], nil); err != nil {
				return err
			}
		}
		return nil
	}
	for len(b) > 0 {
		n := min(len(b), d.chunk)
		if err := d.hw.Conn.Tx(b[:n], nil); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func le16(v uint16) [2]byte { return [2]byte{byte(v), byte(v >> 8)} }
