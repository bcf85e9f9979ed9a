package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/busbell/busbell-go/cmd/devices"
	"github.com/busbell/busbell-go/cmd/file"
	"github.com/busbell/busbell-go/cmd/realtime"
	"github.com/busbell/busbell-go/cmd/server"
	"github.com/busbell/busbell-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "busbell",
		Short: "BusBell-Go CLI",
		Long:  "Realtime acoustic bell detection: capture, MFCC features, TFLite inference.",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		realtime.Command(settings),
		file.Command(settings),
		devices.Command(settings),
		server.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Flags have been parsed into settings; re-validate so a bad
		// --threshold fails before any device or model is touched.
		return settings.Validate()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	flags := rootCmd.PersistentFlags()

	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.StringVar(&settings.BusBell.ModelPath, "model", viper.GetString("busbell.modelpath"), "Path to the TensorFlow Lite model file")
	flags.StringVar(&settings.BusBell.LabelPath, "labels", viper.GetString("busbell.labelpath"), "Path to the class label file")
	flags.StringVar(&settings.BusBell.TargetClass, "target", viper.GetString("busbell.targetclass"), "Class label that triggers a detection")
	flags.Float64VarP(&settings.BusBell.Threshold, "threshold", "t", viper.GetFloat64("busbell.threshold"), "Confidence threshold for detections, value between 0.0 and 1.0")
	flags.StringVar(&settings.Audio.Source, "source", viper.GetString("audio.source"), "Audio capture device name or ID")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
