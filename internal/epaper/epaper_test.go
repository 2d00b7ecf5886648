package epaper_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/relabs-tech/eink_station/internal/epaper"
	"github.com/relabs-tech/eink_station/internal/panelsim"
)

// autoClock returns a fake clock that advances whenever something waits on it.
func autoClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			if err := fc.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			fc.Advance(5 * time.Millisecond)
		}
	}()
	return fc
}

type recorded struct {
	rec  *spitest.Record
	busy *gpiotest.Pin
	rst  *gpiotest.Pin
	dc   *gpiotest.Pin
	hw   epaper.Hardware
}

func newRecorded(t *testing.T) *recorded {
	t.Helper()
	rec := &spitest.Record{}
	c, err := rec.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	require.NoError(t, err)
	r := &recorded{
		rec:  rec,
		busy: &gpiotest.Pin{N: "BUSY", L: gpio.Low},
		rst:  &gpiotest.Pin{N: "RST"},
		dc:   &gpiotest.Pin{N: "DC"},
	}
	r.hw = epaper.Hardware{Conn: c, Busy: r.busy, Reset: r.rst, DC: r.dc}
	return r
}

func (r *recorded) writes() [][]byte {
	out := make([][]byte, len(r.rec.Ops))
	for i, op := range r.rec.Ops {
		out[i] = op.W
	}
	return out
}

func opts(t *testing.T, w, h int) *epaper.Opts {
	o := epaper.DefaultOpts
	o.Width, o.Height = w, h
	o.Clock = autoClock(t)
	return &o
}

func TestInitSequence(t *testing.T) {
	r := newRecorded(t)
	d, err := epaper.New(r.hw, opts(t, 200, 200))
	require.NoError(t, err)
	assert.Equal(t, epaper.StateReset, d.State())

	require.NoError(t, d.Init(context.Background()))
	assert.Equal(t, epaper.StateIdle, d.State())
	assert.Equal(t, gpio.High, r.rst.Read())

	want := [][]byte{
		{0x12},
		{0x01}, {0xc7, 0x00, 0x01},
		{0x11}, {0x01},
		{0x44}, {0x00, 0x18},
		{0x45}, {0xc7, 0x00, 0x00, 0x00},
		{0x3c}, {0x05},
		{0x4e}, {0x00},
		{0x4f}, {0xc7, 0x00},
	}
	assert.Equal(t, want, r.writes())
}

func TestTransferInvertsChromaticAndRefreshes(t *testing.T) {
	r := newRecorded(t)
	d, err := epaper.New(r.hw, opts(t, 16, 2))
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))
	r.rec.Ops = nil

	b := d.NewBuffer()
	b.SetPixel(0, 0, epaper.Black)
	b.SetPixel(9, 1, epaper.Chromatic)
	require.NoError(t, d.Transfer(context.Background(), b))

	want := [][]byte{
		{0x24}, {0x7f, 0xff, 0xff, 0xff},
		{0x26}, {0x00, 0x00, 0x00, 0x40},
		{0x22}, {0xf7},
		{0x20},
	}
	assert.Equal(t, want, r.writes())
	assert.Equal(t, epaper.StateIdle, d.State())
	assert.Equal(t, gpio.Low, r.dc.Read(), "DC left in command mode after activation")
}

func TestChunkedWrites(t *testing.T) {
	r := newRecorded(t)
	o := opts(t, 200, 200)
	o.ChunkSize = 1000
	d, err := epaper.New(r.hw, o)
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))
	r.rec.Ops = nil

	require.NoError(t, d.TransferPlanes(context.Background(), d.NewBuffer().Black(), nil))
	w := r.writes()
	require.Len(t, w, 1+5+3)
	assert.Equal(t, []byte{0x24}, w[0])
	for _, chunk := range w[1:6] {
		assert.Len(t, chunk, 1000)
	}
	assert.Equal(t, []byte{0x22}, w[6])
}

func TestIndividualWrites(t *testing.T) {
	r := newRecorded(t)
	o := opts(t, 16, 2)
	o.WriteMode = epaper.Individual
	d, err := epaper.New(r.hw, o)
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))
	for _, w := range r.writes() {
		assert.Len(t, w, 1)
	}
}

func TestGeometryValidation(t *testing.T) {
	r := newRecorded(t)
	for _, wh := range [][2]int{{201, 200}, {0, 200}, {200, 0}, {8 * 300, 10}, {8 * 257, 1}, {8, 0x10001}} {
		_, err := epaper.New(r.hw, opts(t, wh[0], wh[1]))
		assert.ErrorIs(t, err, epaper.ErrGeometry, "%v", wh)
	}
	// The widest RAM X window the controller can address.
	_, err := epaper.New(r.hw, opts(t, 8*256, 1))
	require.NoError(t, err)
	_, err = epaper.New(epaper.Hardware{}, nil)
	assert.Error(t, err)
}

func TestDrawerComposesAndHalts(t *testing.T) {
	panel := panelsim.New(16, 4)
	dev, err := epaper.New(panel.Hardware(), opts(t, 16, 4))
	require.NoError(t, err)
	require.NoError(t, dev.Init(context.Background()))

	var d display.Drawer = dev
	assert.Equal(t, image.Rect(0, 0, 16, 4), d.Bounds())

	src := image.NewRGBA(image.Rect(0, 0, 16, 4))
	draw.Draw(src, src.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(src, image.Rect(0, 0, 8, 4), image.Black, image.Point{}, draw.Src)
	src.Set(12, 2, color.RGBA{R: 0xff, A: 0xff})
	require.NoError(t, d.Draw(d.Bounds(), src, image.Point{}))
	assert.Equal(t, 1, panel.RefreshCount())
	assert.Equal(t, epaper.Black, panel.Pixel(3, 1))
	assert.Equal(t, epaper.White, panel.Pixel(10, 1))
	assert.Equal(t, epaper.Chromatic, panel.Pixel(12, 2))

	// A partial draw keeps what was drawn before.
	require.NoError(t, d.Draw(image.Rect(8, 0, 16, 4), image.Black, image.Point{}))
	assert.Equal(t, 2, panel.RefreshCount())
	assert.Equal(t, epaper.Black, panel.Pixel(3, 1))
	assert.Equal(t, epaper.Black, panel.Pixel(10, 1))

	require.NoError(t, d.Halt())
	assert.True(t, panel.IsSleeping())
	assert.Equal(t, epaper.StateSleeping, dev.State())
	assert.Empty(t, panel.Violations)
}

func TestStateMachine(t *testing.T) {
	panel := panelsim.New(16, 4)
	d, err := epaper.New(panel.Hardware(), opts(t, 16, 4))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, d.Transfer(ctx, d.NewBuffer()), epaper.ErrState)
	_, err = d.Release(ctx)
	assert.ErrorIs(t, err, epaper.ErrState)

	require.NoError(t, d.Init(ctx))
	assert.ErrorIs(t, d.Init(ctx), epaper.ErrState)

	hw, err := d.Release(ctx)
	require.NoError(t, err)
	assert.Equal(t, epaper.StateSleeping, d.State())
	assert.True(t, panel.Sleeping)
	assert.NotNil(t, hw.Conn)
	assert.ErrorIs(t, d.Transfer(ctx, d.NewBuffer()), epaper.ErrState)

	require.NoError(t, d.Init(ctx))
	assert.False(t, panel.Sleeping)
	assert.Equal(t, 2, panel.HardwareResets)
	assert.Empty(t, panel.Violations)
}

func TestBufferSizeMismatch(t *testing.T) {
	panel := panelsim.New(16, 4)
	d, err := epaper.New(panel.Hardware(), opts(t, 16, 4))
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))
	assert.ErrorIs(t, d.Transfer(context.Background(), epaper.NewBuffer(8, 4)), epaper.ErrBufferSize)
	assert.ErrorIs(t, d.TransferPlanes(context.Background(), make([]byte, 3), nil), epaper.ErrBufferSize)
	assert.Equal(t, epaper.StateIdle, d.State())
}

func TestBusyTimeout(t *testing.T) {
	r := newRecorded(t)
	r.busy.L = gpio.High
	o := opts(t, 16, 2)
	o.BusyTimeout = 100 * time.Millisecond
	d, err := epaper.New(r.hw, o)
	require.NoError(t, err)

	err = d.Init(context.Background())
	assert.ErrorIs(t, err, epaper.ErrBusyTimeout)
	assert.Equal(t, epaper.StateReset, d.State())
}

func TestBusyWaitHonoursContext(t *testing.T) {
	r := newRecorded(t)
	r.busy.L = gpio.High
	o := epaper.DefaultOpts
	o.Width, o.Height = 16, 2
	o.Clock = clockwork.NewFakeClock()
	d, err := epaper.New(r.hw, &o)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Init(ctx), context.Canceled)
}

func TestBusyEdgeWait(t *testing.T) {
	r := newRecorded(t)
	r.busy.L = gpio.High
	r.busy.EdgesChan = make(chan gpio.Level, 1)
	o := opts(t, 16, 2)
	o.BusyEdge = true
	o.BusyPoll = time.Second
	d, err := epaper.New(r.hw, o)
	require.NoError(t, err)

	r.busy.EdgesChan <- gpio.Low
	require.NoError(t, d.Init(context.Background()))
	assert.Equal(t, epaper.StateIdle, d.State())
}

type failingConn struct {
	failAfter int
	n         int
}

var errBus = errors.New("bus fault")

func (f *failingConn) Tx(w, r []byte) error {
	f.n++
	if f.n > f.failAfter {
		return errBus
	}
	return nil
}

func TestTransferErrorRequiresInit(t *testing.T) {
	fc := &failingConn{failAfter: 15}
	hw := epaper.Hardware{
		Conn:  fc,
		Busy:  &gpiotest.Pin{L: gpio.Low},
		Reset: &gpiotest.Pin{},
		DC:    &gpiotest.Pin{},
	}
	d, err := epaper.New(hw, opts(t, 16, 2))
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background()))

	err = d.Transfer(context.Background(), d.NewBuffer())
	assert.ErrorIs(t, err, errBus)
	assert.Equal(t, epaper.StateReset, d.State())

	fc.failAfter = 1 << 30
	require.NoError(t, d.Init(context.Background()))
	assert.NoError(t, d.Transfer(context.Background(), d.NewBuffer()))
}
