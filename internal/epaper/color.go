package epaper

import "image/color"

// Color is one of the four pixel values of a tri-color panel.
type Color uint8

const (
	Black Color = iota
	White
	Chromatic
	// Transparent leaves the pixel untouched when drawn.
	Transparent
)

func (c Color) String() string {
	switch c {
	case Black:
		return "Black"
	case White:
		return "White"
	case Chromatic:
		return "Chromatic"
	case Transparent:
		return "Transparent"
	}
	return "Color(?)"
}

// RGBA implements color.Color. Chromatic is rendered as red.
func (c Color) RGBA() (r, g, b, a uint32) {
	switch c {
	case Black:
		return 0, 0, 0, 0xffff
	case White:
		return 0xffff, 0xffff, 0xffff, 0xffff
	case Chromatic:
		return 0xffff, 0, 0, 0xffff
	}
	return 0, 0, 0, 0
}

// Model converts any color to the nearest tri-color value.
var Model = color.ModelFunc(convert)

func convert(c color.Color) color.Color {
	if tc, ok := c.(Color); ok {
		return tc
	}
	r, g, b, a := c.RGBA()
	if a < 0x8000 {
		return Transparent
	}
	// Saturated reds go to the accent plane.
	if r > 0x8000 && g < r/2 && b < r/2 {
		return Chromatic
	}
	// ITU BT.601 luma, same weights as color.GrayModel.
	y := (19595*r + 38470*g + 7471*b + 1<<15) >> 16
	if y < 0x8000 {
		return Black
	}
	return White
}
