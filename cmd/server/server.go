package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/uploadserver"
)

// Command creates the upload service subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the audio upload service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := uploadserver.New(settings, slog.Default())
			return srv.Start(ctx)
		},
	}

	cmd.PersistentFlags().StringVar(&settings.Server.Listen, "listen", settings.Server.Listen, "Address to listen on")
	cmd.PersistentFlags().StringVar(&settings.Server.UploadPath, "uploadpath", settings.Server.UploadPath, "Directory for uploaded audio files")

	return cmd
}
