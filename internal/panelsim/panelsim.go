// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package panelsim emulates an SSD1681 controller on the host. It decodes
// the command stream written by the epaper driver into controller RAM and
// renders what the glass would show.
package panelsim

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/eink_station/internal/epaper"
)

var ErrNoCommand = errors.New("panelsim: data without command")

// Panel is a simulated controller plus its DC, RST and BUSY lines.
type Panel struct {
	mu sync.Mutex

	width, height int
	stride        int
	black         []byte // controller RAM, 0 = black
	red           []byte // controller RAM, 1 = accent

	dc    gpio.Level
	rst   gpio.Level
	cmd   int // -1 when no command is active
	param []byte

	xStart, xEnd int
	yStart, yEnd int
	x, y         int
	entryMode    byte
	gateTB       bool

	// BusyCycles is how many BUSY reads stay high after a slow command.
	BusyCycles int
	busyLeft   int

	Refreshes      int
	HardwareResets int
	SoftwareResets int
	Sleeping       bool
	Waveform       byte
	Border         byte
	Txs            int
	Violations     []string

	onRefresh []func()
}

// New returns a panel with blank RAM.
func New(width, height int) *Panel {
	stride := (width + 7) / 8
	p := &Panel{
		width:  width,
		height: height,
		stride: stride,
		black:  make([]byte, stride*height),
		red:    make([]byte, stride*height),
		cmd:    -1,
		rst:    gpio.High,
	}
	for i := range p.black {
		p.black[i] = 0xff
	}
	return p
}

// Hardware returns the panel as driver resources.
func (p *Panel) Hardware() epaper.Hardware {
	return epaper.Hardware{Conn: p, Busy: busyPin{p}, Reset: rstPin{p}, DC: dcPin{p}}
}

// OnRefresh registers f to run after every master activation.
func (p *Panel) OnRefresh(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRefresh = append(p.onRefresh, f)
}

func (p *Panel) String() string { return fmt.Sprintf("panelsim(%dx%d)", p.width, p.height) }

// Tx implements epaper.Conn. Reads are not supported.
func (p *Panel) Tx(w, r []byte) error {
	if len(r) != 0 {
		return errors.New("panelsim: read not supported")
	}
	p.mu.Lock()
	p.Txs++
	var err error
	refreshed := false
	if p.dc == gpio.Low {
		for _, c := range w {
			if p.command(c) {
				refreshed = true
			}
		}
	} else {
		err = p.data(w)
	}
	cbs := p.onRefresh
	p.mu.Unlock()

	if refreshed {
		for _, f := range cbs {
			f()
		}
	}
	return err
}

func (p *Panel) violation(format string, a ...any) {
	p.Violations = append(p.Violations, fmt.Sprintf(format, a...))
}

// command starts a new command and reports whether it triggered a refresh.
func (p *Panel) command(c byte) bool {
	if p.Sleeping {
		p.violation("command 0x%02X while in deep sleep", c)
		return false
	}
	p.cmd = int(c)
	p.param = p.param[:0]
	switch c {
	case epaper.CmdSoftwareReset:
		p.SoftwareResets++
		p.busyLeft = p.BusyCycles
	case epaper.CmdMasterActivation:
		p.Refreshes++
		p.busyLeft = p.BusyCycles
		return true
	}
	return false
}

func (p *Panel) data(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if p.cmd < 0 {
		p.violation("%d data bytes without command", len(b))
		return ErrNoCommand
	}
	switch p.cmd {
	case epaper.CmdWriteRAMBlack:
		for _, v := range b {
			p.writeRAM(p.black, v)
		}
		return nil
	case epaper.CmdWriteRAMChromatic:
		for _, v := range b {
			p.writeRAM(p.red, v)
		}
		return nil
	}
	p.param = append(p.param, b...)
	q := p.param
	switch p.cmd {
	case epaper.CmdDriverOutputControl:
		if len(q) == 3 {
			p.gateTB = q[2]&0x01 != 0
		}
	case epaper.CmdDataEntryMode:
		p.entryMode = q[0]
	case epaper.CmdRAMXStartEnd:
		if len(q) == 2 {
			p.xStart, p.xEnd = int(q[0]), int(q[1])
		}
	case epaper.CmdRAMYStartEnd:
		if len(q) == 4 {
			p.yStart = int(q[0]) | int(q[1])<<8
			p.yEnd = int(q[2]) | int(q[3])<<8
		}
	case epaper.CmdRAMXCounter:
		p.x = int(q[0])
	case epaper.CmdRAMYCounter:
		if len(q) == 2 {
			p.y = int(q[0]) | int(q[1])<<8
		}
	case epaper.CmdBorderWaveform:
		p.Border = q[0]
	case epaper.CmdDisplayUpdateCtrl2:
		p.Waveform = q[0]
	case epaper.CmdDeepSleepMode:
		if q[0]&0x03 != 0 {
			p.Sleeping = true
		}
	}
	return nil
}

// writeRAM stores v at the address counter and advances it according to
// the data entry mode, wrapping inside the RAM window.
func (p *Panel) writeRAM(ram []byte, v byte) {
	if p.x >= 0 && p.x < p.stride && p.y >= 0 && p.y < p.height {
		ram[p.y*p.stride+p.x] = v
	} else {
		p.violation("RAM write outside panel at x=%d y=%d", p.x, p.y)
	}
	xInc := p.entryMode&0x01 != 0
	yInc := p.entryMode&0x02 != 0
	if xInc {
		p.x++
		if p.x > p.xEnd {
			p.x = p.xStart
			p.stepY(yInc)
		}
	} else {
		p.x--
		if p.x < p.xStart {
			p.x = p.xEnd
			p.stepY(yInc)
		}
	}
}

func (p *Panel) stepY(inc bool) {
	lo, hi := min(p.yStart, p.yEnd), max(p.yStart, p.yEnd)
	if inc {
		p.y++
		if p.y > hi {
			p.y = lo
		}
		return
	}
	p.y--
	if p.y < lo {
		p.y = hi
	}
}

func (p *Panel) setDC(l gpio.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dc = l
}

func (p *Panel) setRST(l gpio.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rst == gpio.Low && l == gpio.High {
		p.HardwareResets++
		p.Sleeping = false
		p.cmd = -1
	}
	p.rst = l
}

func (p *Panel) readBusy() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busyLeft > 0 {
		p.busyLeft--
		return gpio.High
	}
	return gpio.Low
}

// row maps a displayed row to the controller RAM row.
func (p *Panel) row(y int) int {
	if p.gateTB {
		return p.height - 1 - y
	}
	return y
}

// RefreshCount is Refreshes read under the panel lock.
func (p *Panel) RefreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Refreshes
}

// IsSleeping is Sleeping read under the panel lock.
func (p *Panel) IsSleeping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Sleeping
}

// Pixel returns what the glass shows at (x, y).
func (p *Panel) Pixel(x, y int) epaper.Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pixel(x, y)
}

func (p *Panel) pixel(x, y int) epaper.Color {
	i := p.row(y)*p.stride + x/8
	m := byte(0x80) >> (x % 8)
	switch {
	case p.red[i]&m != 0:
		return epaper.Chromatic
	case p.black[i]&m == 0:
		return epaper.Black
	}
	return epaper.White
}

// Image renders the panel.
func (p *Panel) Image() *image.RGBA {
	p.mu.Lock()
	defer p.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			img.Set(x, y, color.RGBAModel.Convert(p.pixel(x, y)))
		}
	}
	return img
}

// WritePNG encodes the panel as PNG.
func (p *Panel) WritePNG(w io.Writer) error {
	return png.Encode(w, p.Image())
}

type dcPin struct{ p *Panel }

func (d dcPin) Out(l gpio.Level) error { d.p.setDC(l); return nil }

type rstPin struct{ p *Panel }

func (r rstPin) Out(l gpio.Level) error { r.p.setRST(l); return nil }

type busyPin struct{ p *Panel }

func (b busyPin) Read() gpio.Level { return b.p.readBusy() }
