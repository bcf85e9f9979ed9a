package file

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/busbell/busbell-go/internal/bellnet"
	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/detection"
	"github.com/busbell/busbell-go/internal/mfcc"
)

// Command creates the file analysis subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "file [input.wav]",
		Short: "Analyze a WAV audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.InputFile = args[0]

			extractor := mfcc.New(settings)
			classifier, err := bellnet.New(settings, extractor.NumFrames(), extractor.NumCoefficients())
			if err != nil {
				return err
			}
			defer classifier.Delete()

			return detection.AnalyzeFile(settings, extractor, classifier, settings.InputFile, os.Stdout)
		},
	}
}
