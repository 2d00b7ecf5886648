package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/eink_station/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print readings as the station publishes them",
	Long: `Subscribe to the MQTT feeds the station publishes to
(<MQTT_USERNAME>/feeds/<MQTT_FEED_PREFIX>.temperature and so on) and print
each value until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.MQTTFeedPrefix == "" {
		return fmt.Errorf("MQTT_FEED_PREFIX is not configured")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cyan.Fprintf(cmd.OutOrStdout(), "watching %s/feeds/%s.* on %s\n", cfg.MQTTUsername, cfg.MQTTFeedPrefix, cfg.MQTTBroker)
	return app.RunFeedConsole(ctx, app.NewMQTTClient(cfg), cfg.MQTTUsername, cfg.MQTTFeedPrefix, cmd.OutOrStdout())
}
