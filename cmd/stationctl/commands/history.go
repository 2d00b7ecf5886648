package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/eink_station/internal/retained"
)

var historyRetained string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the readings kept in the retained region",
	Long: `Print the retained boot counter, the persisted clock and every reading
in the history ring, oldest first. Synthetic readings were generated while
the sensor could not be read.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyRetained, "retained", "", "retained region file (RETAINED_PATH when empty)")
	rootCmd.AddCommand(historyCmd)
}

// openState maps the retained file read-only in spirit: the state is never
// saved back.
func openState(path string) (*retained.State, func(), error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("no retained region at %s", path)
		}
		return nil, nil, err
	}
	region, err := retained.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	store, err := retained.Open(region)
	if err != nil {
		region.Close()
		return nil, nil, err
	}
	st, err := store.Take()
	if err != nil {
		region.Close()
		return nil, nil, err
	}
	return st, func() { region.Close() }, nil
}

func retainedPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.RetainedPath, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, err := retainedPath(historyRetained)
	if err != nil {
		return err
	}
	st, closeState, err := openState(path)
	if err != nil {
		return err
	}
	defer closeState()

	out := cmd.OutOrStdout()
	if st.Cold {
		yellow.Fprintf(out, "region %s holds no station state\n", path)
		return nil
	}
	fmt.Fprintf(out, "boot count: %d\n", st.BootCount)
	if st.Epoch == 0 {
		fmt.Fprintln(out, "clock:      not synchronized")
	} else {
		wake := time.Unix(int64(st.Epoch), 0).In(time.FixedZone("", int(st.Offset)))
		fmt.Fprintf(out, "clock:      next boot at %s\n", wake.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "readings:   %d of %d\n", st.History.Len(), st.History.Cap())
	if st.History.Len() == 0 {
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("#", "Time", "Temperature", "Humidity", "Pressure", "Source")
	for i, r := range st.History.All() {
		source := "sensor"
		if r.Synthetic {
			source = yellow.Sprint("synthetic")
		}
		if err := table.Append([]string{
			strconv.Itoa(i),
			r.Time.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.2f C", r.Celsius()),
			fmt.Sprintf("%.1f %%", r.Percent()),
			fmt.Sprintf("%.1f hPa", r.HPa()),
			source,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
