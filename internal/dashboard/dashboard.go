// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dashboard lays out the station screen: the latest measurements,
// the update time and a temperature trend of the retained history.
package dashboard

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/eink_station/internal/domain"
	"github.com/relabs-tech/eink_station/internal/epaper"
)

const (
	lineHeight = 16
	marginX    = 2
	// The trend is only drawn with at least this many points.
	minTrendPoints = 2
)

// ErrTooSmall is returned when the buffer cannot hold the text block.
var ErrTooSmall = errors.New("dashboard: buffer too small")

var face = basicfont.Face7x13

// span is a run of text drawn in one color.
type span struct {
	text  string
	color epaper.Color
}

// Lines returns the text rows of the dashboard.
func Lines(now time.Time, r domain.Reading) [][]span {
	s := r.Sample
	lines := [][]span{
		{{"Temperature: ", epaper.Black}, {fmt.Sprintf("%3.1f", s.Celsius()), epaper.Chromatic}, {" C", epaper.Black}},
		{{"Humidity: ", epaper.Black}, {fmt.Sprintf("%5.0f", s.Percent()), epaper.Chromatic}, {" %", epaper.Black}},
		{{"Pressure: ", epaper.Black}, {fmt.Sprintf("%5.1f", s.HPa()), epaper.Chromatic}, {" hPa", epaper.Black}},
		{{"Updated at ", epaper.Black}, {now.Format("15:04"), epaper.Chromatic}},
	}
	if r.Synthetic {
		lines = append(lines, []span{{"Sensor offline", epaper.Chromatic}})
	}
	return lines
}

// Draw renders the dashboard into dst. The buffer is cleared first.
func Draw(dst *epaper.Buffer, now time.Time, latest domain.Reading, history []domain.Reading) error {
	b := dst.Bounds()
	lines := Lines(now, latest)
	textBottom := len(lines)*lineHeight + 4
	widest := 0
	for _, l := range lines {
		w := 0
		for _, sp := range l {
			w += font.MeasureString(face, sp.text).Ceil()
		}
		widest = max(widest, w)
	}
	if b.Dx() < widest+marginX || b.Dy() < textBottom {
		return fmt.Errorf("%w: %dx%d", ErrTooSmall, b.Dx(), b.Dy())
	}

	dst.Fill(epaper.White)
	d := &font.Drawer{Dst: dst, Face: face}
	for i, l := range lines {
		d.Dot = fixed.P(b.Min.X+marginX, b.Min.Y+(i+1)*lineHeight-3)
		for _, sp := range l {
			d.Src = image.NewUniform(sp.color)
			d.DrawString(sp.text)
		}
	}

	area := image.Rect(b.Min.X+marginX, b.Min.Y+textBottom+4, b.Max.X-marginX, b.Max.Y-marginX)
	if area.Dx() > 4 && area.Dy() > 4 && len(history) >= minTrendPoints {
		drawTrend(dst, area, history)
	}
	return nil
}

// drawTrend plots temperature over the history inside a frame. Synthetic
// readings are plotted in the accent color.
func drawTrend(dst *epaper.Buffer, area image.Rectangle, history []domain.Reading) {
	frame(dst, area)
	inner := area.Inset(2)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range history {
		c := r.Sample.Celsius()
		lo, hi = math.Min(lo, c), math.Max(hi, c)
	}
	if hi-lo < 1 {
		mid := (hi + lo) / 2
		lo, hi = mid-0.5, mid+0.5
	}

	n := len(history)
	pts := make([]image.Point, n)
	for i, r := range history {
		frac := (r.Sample.Celsius() - lo) / (hi - lo)
		pts[i] = image.Pt(
			inner.Min.X+i*(inner.Dx()-1)/(n-1),
			inner.Max.Y-1-int(math.Round(frac*float64(inner.Dy()-1))),
		)
	}
	for i := 1; i < n; i++ {
		line(dst, pts[i-1].X, pts[i-1].Y, pts[i].X, pts[i].Y, epaper.Black)
	}
	for i, r := range history {
		if r.Synthetic {
			dst.SetPixel(pts[i].X, pts[i].Y, epaper.Chromatic)
		}
	}
	last := pts[n-1]
	// Mark the newest point.
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			dst.SetPixel(last.X+dx, last.Y+dy, epaper.Chromatic)
		}
	}
}

func frame(dst *epaper.Buffer, r image.Rectangle) {
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.SetPixel(x, r.Min.Y, epaper.Black)
		dst.SetPixel(x, r.Max.Y-1, epaper.Black)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.SetPixel(r.Min.X, y, epaper.Black)
		dst.SetPixel(r.Max.X-1, y, epaper.Black)
	}
}

// line draws with Bresenham's algorithm.
func line(dst *epaper.Buffer, x0, y0, x1, y1 int, c epaper.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		dst.SetPixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
