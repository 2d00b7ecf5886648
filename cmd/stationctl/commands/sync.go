package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/eink_station/internal/app"
	"github.com/relabs-tech/eink_station/internal/clock"
)

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Query the configured time source once",
	Long: `Query TIME_SOURCE once, without retries, and print the instant and
UTC offset it reports next to the host clock.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 30*time.Second, "give up after this long")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()
	return printSync(ctx, cmd, cfg.TimeSource, app.NewTimeSource(cfg))
}

func printSync(ctx context.Context, cmd *cobra.Command, name string, src clock.Source) error {
	utc, offset, err := src.FetchCurrentTime(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	local := utc.In(time.FixedZone("", int(offset)))
	out := cmd.OutOrStdout()
	green.Fprintf(out, "%s: ", name)
	fmt.Fprintf(out, "%s (offset %+ds)\n", local.Format(time.RFC3339), offset)
	fmt.Fprintf(out, "host clock differs by %s\n", time.Since(utc).Round(time.Millisecond))
	return nil
}
