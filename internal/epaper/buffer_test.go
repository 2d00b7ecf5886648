package epaper

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBufferIsWhite(t *testing.T) {
	b := NewBuffer(200, 200)
	require.Len(t, b.Black(), 5000)
	require.Len(t, b.Chromatic(), 5000)
	for i := range b.Black() {
		assert.Equal(t, byte(0xff), b.Black()[i])
		assert.Equal(t, byte(0xff), b.Chromatic()[i])
	}
	assert.Equal(t, White, b.PixelAt(17, 33))
}

func TestPlaneSizeRoundsUp(t *testing.T) {
	assert.Equal(t, 2*3, PlaneSize(9, 3))
	assert.Len(t, NewBuffer(9, 3).Black(), 6)
}

func TestIndexAndMask(t *testing.T) {
	b := NewBuffer(200, 200)
	i, m := b.IndexAndMask(0, 0)
	assert.Equal(t, 0, i)
	assert.Equal(t, byte(0x80), m)

	i, m = b.IndexAndMask(13, 2)
	// bit = 13 + 2*200 = 413 -> byte 51, bit 5 from the MSB
	assert.Equal(t, 51, i)
	assert.Equal(t, byte(1<<(7-5)), m)
}

func TestColorEncoding(t *testing.T) {
	b := NewBuffer(200, 200)
	x, y := 13, 2
	i, m := b.IndexAndMask(x, y)

	b.SetPixel(x, y, Black)
	assert.Zero(t, b.Black()[i]&m, "black bit cleared")
	assert.Equal(t, m, b.Chromatic()[i]&m, "chromatic bit untouched")
	assert.Equal(t, byte(0xff)&^m, b.Black()[i], "neighbours untouched")
	assert.Equal(t, Black, b.PixelAt(x, y))

	b.SetPixel(x, y, White)
	assert.Equal(t, m, b.Black()[i]&m)
	assert.Equal(t, m, b.Chromatic()[i]&m)
	assert.Equal(t, White, b.PixelAt(x, y))

	b.SetPixel(x, y, Chromatic)
	assert.Equal(t, m, b.Black()[i]&m, "black bit untouched")
	assert.Zero(t, b.Chromatic()[i]&m)
	assert.Equal(t, Chromatic, b.PixelAt(x, y))

	b.SetPixel(x, y, Transparent)
	assert.Equal(t, Chromatic, b.PixelAt(x, y))
}

func TestOutOfRangeIgnored(t *testing.T) {
	b := NewBuffer(16, 4)
	b.SetPixel(-1, 0, Black)
	b.SetPixel(16, 0, Black)
	b.SetPixel(0, 4, Black)
	for _, v := range b.Black() {
		assert.Equal(t, byte(0xff), v)
	}
	assert.Equal(t, Transparent, b.PixelAt(16, 0))
}

func TestRotation(t *testing.T) {
	cases := []struct {
		r      Rotation
		bounds image.Rectangle
		nx, ny int
	}{
		{Rotate0, image.Rect(0, 0, 16, 8), 1, 2},
		{Rotate90, image.Rect(0, 0, 8, 16), 16 - 1 - 2, 1},
		{Rotate180, image.Rect(0, 0, 16, 8), 16 - 1 - 1, 8 - 1 - 2},
		{Rotate270, image.Rect(0, 0, 8, 16), 2, 8 - 1 - 1},
	}
	for _, c := range cases {
		b := NewBuffer(16, 8)
		b.SetRotation(c.r)
		assert.Equal(t, c.bounds, b.Bounds(), c.r)
		b.SetPixel(1, 2, Black)
		i, m := b.IndexAndMask(c.nx, c.ny)
		assert.Zero(t, b.Black()[i]&m, "rotation %d", c.r)
		assert.Equal(t, Black, b.PixelAt(1, 2))
	}
}

func TestDrawImage(t *testing.T) {
	b := NewBuffer(16, 8)
	var _ draw.Image = b

	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	src.Set(0, 0, color.Black)
	src.Set(1, 0, color.RGBA{R: 0xff, A: 0xff})
	src.Set(2, 0, color.White)
	draw.Draw(b, b.Bounds(), src, image.Point{}, draw.Src)

	assert.Equal(t, Black, b.PixelAt(0, 0))
	assert.Equal(t, Chromatic, b.PixelAt(1, 0))
	assert.Equal(t, White, b.PixelAt(2, 0))
	// Transparent source pixels leave the buffer as is.
	assert.Equal(t, White, b.PixelAt(5, 5))
}

func TestModel(t *testing.T) {
	assert.Equal(t, Black, Model.Convert(color.Gray{Y: 0x20}))
	assert.Equal(t, White, Model.Convert(color.Gray{Y: 0xe0}))
	assert.Equal(t, Chromatic, Model.Convert(color.RGBA{R: 0xd0, G: 0x10, B: 0x10, A: 0xff}))
	assert.Equal(t, Transparent, Model.Convert(color.Transparent))
	assert.Equal(t, Chromatic, Model.Convert(Chromatic))
}

func TestFill(t *testing.T) {
	b := NewBuffer(16, 2)
	b.Fill(Black)
	assert.Equal(t, Black, b.PixelAt(3, 1))
	b.Fill(Chromatic)
	assert.Equal(t, Chromatic, b.PixelAt(3, 1))
	b.Fill(White)
	assert.Equal(t, White, b.PixelAt(3, 1))
}
