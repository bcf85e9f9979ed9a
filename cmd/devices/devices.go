package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/myaudio"
)

// Command creates the capture device listing subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := myaudio.ListCaptureDevices()
			if err != nil {
				return err
			}

			fmt.Println("Available capture devices:")
			for _, info := range infos {
				marker := " "
				if info.Default {
					marker = "*"
				}
				fmt.Printf("%s %d: %s (%s)\n", marker, info.Index, info.Name, info.ID)
			}
			return nil
		},
	}
}
