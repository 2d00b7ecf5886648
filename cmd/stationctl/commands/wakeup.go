package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/eink_station/internal/clock"
)

var (
	wakeupPeriod time.Duration
	wakeupAt     string
)

var wakeupCmd = &cobra.Command{
	Use:   "wakeup",
	Short: "Print the next rounded sampling instant",
	Long: `Print the smallest multiple of --period since the Unix epoch that lies
strictly after --at (now when omitted), and how long until then.`,
	RunE: runWakeup,
}

func init() {
	wakeupCmd.Flags().DurationVarP(&wakeupPeriod, "period", "p", time.Minute, "sampling period")
	wakeupCmd.Flags().StringVar(&wakeupAt, "at", "", "reference instant (RFC3339)")
	rootCmd.AddCommand(wakeupCmd)
}

func runWakeup(cmd *cobra.Command, args []string) error {
	at := time.Now()
	if wakeupAt != "" {
		t, err := time.Parse(time.RFC3339, wakeupAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = t
	}
	if at.Unix() < 0 {
		return fmt.Errorf("--at before the Unix epoch")
	}
	if wakeupPeriod < time.Second {
		yellow.Fprintf(cmd.ErrOrStderr(), "period %s rounds up to 1s\n", wakeupPeriod)
	}

	next := clock.RoundedWakeup(uint64(at.Unix()), wakeupPeriod)
	wake := time.Unix(int64(next), 0).In(at.Location())
	out := cmd.OutOrStdout()
	cyan.Fprintf(out, "%s", wake.Format(time.RFC3339))
	fmt.Fprintf(out, " in %s\n", wake.Sub(at.Truncate(time.Second)))
	return nil
}
