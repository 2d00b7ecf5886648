package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/eink_station/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stationctl",
	Short: "Inspect and exercise an eink station",
	Long: `stationctl reads the retained region of an eink station, renders its
dashboard offline and queries the configured time source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		failure(os.Stderr, err)
		return err
	}
	return nil
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "station configuration file (defaults when empty)")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", configPath, err)
	}
	return cfg, nil
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func failure(w io.Writer, err error) {
	red.Fprintf(w, "error: ")
	fmt.Fprintln(w, err)
}
