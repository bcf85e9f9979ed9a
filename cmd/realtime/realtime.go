package realtime

import (
	"github.com/spf13/cobra"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/detection"
)

// Command creates the realtime detection subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Detect bells from the microphone in realtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return detection.RunRealtime(settings)
		},
	}

	cmd.PersistentFlags().StringVar(&settings.Realtime.Log.Path, "logpath", settings.Realtime.Log.Path, "Path to detection log file")
	cmd.PersistentFlags().BoolVar(&settings.Realtime.Telemetry.Enabled, "telemetry", settings.Realtime.Telemetry.Enabled, "Expose prometheus metrics")

	return cmd
}
