package commands

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/eink_station/internal/domain"
	"github.com/relabs-tech/eink_station/internal/retained"
	"github.com/relabs-tech/eink_station/internal/timesource"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestWakeup(t *testing.T) {
	out, err := run(t, "wakeup", "--period", "1m", "--at", "2024-01-15T09:46:12+01:00")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-15T09:47:00+01:00")
	assert.Contains(t, out, "in 48s")

	out, err = run(t, "wakeup", "--period", "15m", "--at", "2024-01-15T09:45:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-15T10:00:00Z", "an exact boundary moves to the next one")

	_, err = run(t, "wakeup", "--at", "yesterday")
	assert.Error(t, err)
}

func writeRegion(t *testing.T, readings ...domain.Reading) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retained.bin")
	region, err := retained.OpenFile(path)
	require.NoError(t, err)
	defer region.Close()
	store, err := retained.Open(region)
	require.NoError(t, err)
	st, err := store.Take()
	require.NoError(t, err)
	st.BootCount = 4
	st.Epoch = uint64(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC).Unix())
	st.Offset = 3600
	for _, r := range readings {
		st.History.Push(r)
	}
	require.NoError(t, store.Save(st))
	return path
}

func sampleReading(minute int, synthetic bool) domain.Reading {
	return domain.Reading{
		Time: time.Date(2024, 1, 15, 8, minute, 0, 0, time.UTC),
		Sample: domain.Sample{
			Temperature: domain.CelsiusToTemperature(21.5),
			Humidity:    48 * physic.PercentRH,
			Pressure:    1003 * domain.Hectopascal,
		},
		Synthetic: synthetic,
	}
}

func TestHistory(t *testing.T) {
	path := writeRegion(t, sampleReading(45, false), sampleReading(46, true))

	out, err := run(t, "history", "--retained", path)
	require.NoError(t, err)
	assert.Contains(t, out, "boot count: 4")
	assert.Contains(t, out, "2024-01-15T10:00:00+01:00")
	assert.Contains(t, out, "readings:   2 of 96")
	assert.Contains(t, out, "2024-01-15 09:45:00", "readings are shown in station time")
	assert.Contains(t, out, "21.50 C")
	assert.Contains(t, out, "1003.0 hPa")
	assert.Contains(t, out, "synthetic")

	_, err = run(t, "history", "--retained", filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorContains(t, err, "no retained region")
}

func TestPreview(t *testing.T) {
	path := writeRegion(t, sampleReading(45, false), sampleReading(46, false))
	png1 := filepath.Join(t.TempDir(), "panel.png")

	out, err := run(t, "preview", "--retained", path, "--out", png1, "--demo", "0", "--rotation", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "2 readings")

	f, err := os.Open(png1)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestPreviewDemoAndEmpty(t *testing.T) {
	png2 := filepath.Join(t.TempDir(), "demo.png")
	out, err := run(t, "preview", "--demo", "96", "--out", png2, "--rotation", "90")
	require.NoError(t, err)
	assert.Contains(t, out, "96 readings")
	_, err = os.Stat(png2)
	require.NoError(t, err)

	empty := writeRegion(t)
	_, err = run(t, "preview", "--demo", "0", "--retained", empty, "--out", png2)
	assert.ErrorContains(t, err, "history is empty")

	_, err = run(t, "preview", "--demo", "5", "--out", png2, "--rotation", "45")
	assert.Error(t, err)
}

func TestPrintSync(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	src := timesource.Func(func(context.Context) (time.Time, int32, error) {
		return time.Date(2024, 1, 15, 8, 46, 12, 0, time.UTC), 3600, nil
	})
	require.NoError(t, printSync(context.Background(), cmd, "worldtimeapi", src))
	assert.Contains(t, out.String(), "worldtimeapi: 2024-01-15T09:46:12+01:00 (offset +3600s)")

	failing := timesource.Func(func(context.Context) (time.Time, int32, error) {
		return time.Time{}, 0, errors.New("connection refused")
	})
	err := printSync(context.Background(), cmd, "adafruitio", failing)
	assert.ErrorContains(t, err, "adafruitio: connection refused")
}

func TestWatchNeedsFeedPrefix(t *testing.T) {
	_, err := run(t, "watch")
	assert.ErrorContains(t, err, "MQTT_FEED_PREFIX")
}
