package commands

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/eink_station/internal/dashboard"
	"github.com/relabs-tech/eink_station/internal/domain"
	"github.com/relabs-tech/eink_station/internal/epaper"
	"github.com/relabs-tech/eink_station/internal/panelsim"
	"github.com/relabs-tech/eink_station/internal/retained"
)

var (
	previewOut      string
	previewRetained string
	previewDemo     int
	previewRotation int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render the dashboard to a PNG file",
	Long: `Render the dashboard for the latest retained reading through the
simulated controller and write what the glass would show as PNG.

With --demo N the history is replaced by N generated readings, one per
minute, ending now.`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewOut, "out", "o", "panel.png", "output PNG file")
	previewCmd.Flags().StringVar(&previewRetained, "retained", "", "retained region file (RETAINED_PATH when empty)")
	previewCmd.Flags().IntVar(&previewDemo, "demo", 0, "render N generated readings instead of the retained history")
	previewCmd.Flags().IntVar(&previewRotation, "rotation", -1, "rotation in degrees (DISPLAY_ROTATION when negative)")
	rootCmd.AddCommand(previewCmd)
}

func demoHistory(n int, end time.Time) *retained.History {
	rng := rand.New(rand.NewSource(end.Unix()))
	h := &retained.History{}
	start := end.Truncate(time.Minute).Add(-time.Duration(n-1) * time.Minute)
	for i := 0; i < n; i++ {
		h.Push(domain.Reading{
			Time:      start.Add(time.Duration(i) * time.Minute),
			Sample:    domain.RandomSample(rng),
			Synthetic: i == n-1,
		})
	}
	return h
}

func rotation(deg int) (epaper.Rotation, error) {
	switch deg {
	case 0:
		return epaper.Rotate0, nil
	case 90:
		return epaper.Rotate90, nil
	case 180:
		return epaper.Rotate180, nil
	case 270:
		return epaper.Rotate270, nil
	}
	return 0, fmt.Errorf("invalid rotation %d", deg)
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var history *retained.History
	if previewDemo > 0 {
		history = demoHistory(previewDemo, time.Now())
	} else {
		path := previewRetained
		if path == "" {
			path = cfg.RetainedPath
		}
		st, closeState, err := openState(path)
		if err != nil {
			return err
		}
		defer closeState()
		history = &st.History
	}
	latest, ok := history.Latest()
	if !ok {
		return fmt.Errorf("history is empty, nothing to render (try --demo 96)")
	}

	deg := cfg.DisplayRotation
	if previewRotation >= 0 {
		deg = previewRotation
	}
	rot, err := rotation(deg)
	if err != nil {
		return err
	}

	panel := panelsim.New(cfg.DisplayWidth, cfg.DisplayHeight)
	opts := epaper.DefaultOpts
	opts.Width, opts.Height = cfg.DisplayWidth, cfg.DisplayHeight
	dev, err := epaper.New(panel.Hardware(), &opts)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := dev.Init(ctx); err != nil {
		return err
	}
	buf := dev.NewBuffer()
	buf.SetRotation(rot)
	if err := dashboard.Draw(buf, latest.Time, latest, history.All()); err != nil {
		return err
	}
	if err := dev.Transfer(ctx, buf); err != nil {
		return err
	}
	if _, err := dev.Release(ctx); err != nil {
		return err
	}

	f, err := os.Create(previewOut)
	if err != nil {
		return err
	}
	if err := panel.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	green.Fprintf(cmd.OutOrStdout(), "wrote %s (%d readings, %d refresh)\n", previewOut, history.Len(), panel.RefreshCount())
	return nil
}
