package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/bigtransfer-go/api"
	"github.com/moyoez/bigtransfer-go/api/notifyhub"
	"github.com/moyoez/bigtransfer-go/share"
	"github.com/moyoez/bigtransfer-go/tool"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var noWS bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API that display clients drive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			defer ctrl.Close()

			var hub *notifyhub.Hub
			if !noWS {
				hub = notifyhub.New()
			}
			batches := share.NewBatchCache(appCfg.Origin, tool.GetHttpClient(), share.DefaultTTL)
			server := api.NewServer(appCfg.Listen, ctrl, batches, hub)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			tool.DefaultLogger.Info("Shutting down control API")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&flags.UseListen, "listen", "", "Control API listen address (overrides config)")
	cmd.Flags().BoolVar(&noWS, "no-ws", false, "Disable the notification websocket")
	return cmd
}
