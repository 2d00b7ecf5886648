// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package epaper

import (
	"image"
	"image/color"
)

// Rotation is applied when drawing, the planes are always in panel order.
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Buffer is a two-plane framebuffer. Each plane holds one bit per pixel,
// MSB first, ceil(width/8) bytes per row.
//
//	black chromatic  color
//	  0       1      Black
//	  1       1      White
//	  x       0      Chromatic
//
// Both planes start at 0xff (white).
type Buffer struct {
	width, height int
	stride        int
	rotation      Rotation
	black         []byte
	chromatic     []byte
}

// NewBuffer allocates a white buffer for a panel of the given native size.
func NewBuffer(width, height int) *Buffer {
	stride := (width + 7) / 8
	b := &Buffer{
		width:     width,
		height:    height,
		stride:    stride,
		black:     make([]byte, stride*height),
		chromatic: make([]byte, stride*height),
	}
	b.Fill(White)
	return b
}

// PlaneSize returns the number of bytes in one plane.
func PlaneSize(width, height int) int { return (width + 7) / 8 * height }

func (b *Buffer) SetRotation(r Rotation) { b.rotation = r }
func (b *Buffer) Rotation() Rotation     { return b.rotation }

// Width and Height are the native panel dimensions.
func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }

// Black returns the black plane. A cleared bit is a black pixel.
func (b *Buffer) Black() []byte { return b.black }

// Chromatic returns the chromatic plane. A cleared bit is an accent pixel.
func (b *Buffer) Chromatic() []byte { return b.chromatic }

// Fill sets every pixel to c.
func (b *Buffer) Fill(c Color) {
	switch c {
	case White:
		fill(b.black, 0xff)
		fill(b.chromatic, 0xff)
	case Black:
		fill(b.black, 0x00)
		fill(b.chromatic, 0xff)
	case Chromatic:
		fill(b.chromatic, 0x00)
	}
}

func fill(p []byte, v byte) {
	for i := range p {
		p[i] = v
	}
}

// ColorModel implements image.Image.
func (b *Buffer) ColorModel() color.Model { return Model }

// Bounds returns the logical bounds after rotation.
func (b *Buffer) Bounds() image.Rectangle {
	if b.rotation == Rotate90 || b.rotation == Rotate270 {
		return image.Rect(0, 0, b.height, b.width)
	}
	return image.Rect(0, 0, b.width, b.height)
}

// native maps a logical coordinate to the panel coordinate.
func (b *Buffer) native(x, y int) (int, int, bool) {
	var nx, ny int
	switch b.rotation {
	case Rotate90:
		nx, ny = b.width-1-y, x
	case Rotate180:
		nx, ny = b.width-1-x, b.height-1-y
	case Rotate270:
		nx, ny = y, b.height-1-x
	default:
		nx, ny = x, y
	}
	if nx < 0 || nx >= b.width || ny < 0 || ny >= b.height {
		return 0, 0, false
	}
	return nx, ny, true
}

// IndexAndMask returns the plane byte index and bit mask of a native pixel.
func (b *Buffer) IndexAndMask(nx, ny int) (int, byte) {
	return ny*b.stride + nx>>3, 0x80 >> (nx & 7)
}

// SetPixel draws c at logical (x, y). Out of range pixels are ignored.
func (b *Buffer) SetPixel(x, y int, c Color) {
	nx, ny, ok := b.native(x, y)
	if !ok {
		return
	}
	i, m := b.IndexAndMask(nx, ny)
	switch c {
	case Black:
		b.black[i] &^= m
	case Chromatic:
		b.chromatic[i] &^= m
	case White:
		b.black[i] |= m
		b.chromatic[i] |= m
	}
}

// Set implements draw.Image.
func (b *Buffer) Set(x, y int, c color.Color) {
	b.SetPixel(x, y, Model.Convert(c).(Color))
}

// At implements image.Image.
func (b *Buffer) At(x, y int) color.Color {
	return b.PixelAt(x, y)
}

// PixelAt returns the color at logical (x, y).
func (b *Buffer) PixelAt(x, y int) Color {
	nx, ny, ok := b.native(x, y)
	if !ok {
		return Transparent
	}
	i, m := b.IndexAndMask(nx, ny)
	switch {
	case b.chromatic[i]&m == 0:
		return Chromatic
	case b.black[i]&m == 0:
		return Black
	}
	return White
}
