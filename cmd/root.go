// Package cmd wires the command-line surface of bigtransfer.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/moyoez/bigtransfer-go/notify"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/transfer"
	"github.com/moyoez/bigtransfer-go/types"
)

var (
	flags  types.Config
	appCfg types.AppConfig
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bigtransfer",
		Short:         "Upload and download file batches through a bigtransfer server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			tool.InitLogger()
			tool.SetLogMode(flags.Log)

			cfg, err := tool.LoadConfig(flags.UseConfigPath)
			if err != nil {
				return err
			}
			tool.ApplyFlags(&cfg, flags)
			appCfg = cfg

			if flags.Insecure {
				tool.InitHTTPClients(true)
			}
			notify.SetUseNotify(appCfg.UseNotify)
			notify.SetSocketPath(appCfg.NotifySocket)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.UseConfigPath, "config", "c", "", "Configuration file path (default ./config.yaml)")
	pf.StringVar(&flags.Log, "log", "", "Log mode: dev, prod or none")
	pf.StringVar(&flags.UseOrigin, "origin", "", "Server origin (overrides config)")
	pf.StringVar(&flags.UseToken, "token", "", "Login token; anonymous when empty")
	pf.StringVarP(&flags.UseOutputDir, "output", "o", "", "Directory for downloaded files")
	pf.BoolVar(&flags.SkipNotify, "no-notify", false, "Disable unix socket notifications")
	pf.BoolVar(&flags.Insecure, "insecure", false, "Skip TLS certificate verification")

	rootCmd.AddCommand(
		newUploadCmd(),
		newDownloadCmd(),
		newDetailsCmd(),
		newServeCmd(),
		newIdentityCmd(),
	)
	return rootCmd
}

// Execute runs the root command; SIGINT and SIGTERM cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		tool.DefaultLogger.Error(err.Error())
		return 1
	}
	return 0
}

// newController builds a controller from the effective configuration.
func newController() *transfer.Controller {
	c := transfer.NewController(appCfg.Origin,
		transfer.WithAnonymousStore(tool.NewAnonymousStore(appCfg.AnonymousIDPath)),
		transfer.WithAnonymousQuota(appCfg.AnonymousQuota),
		transfer.WithReadyCooldown(tool.ReadyCooldown(appCfg)),
		transfer.WithIdentity(types.Identity{Token: appCfg.AuthToken}),
		transfer.WithFetcher(&transfer.HTTPFetcher{
			Client: tool.GetStreamClient(),
			Dir:    appCfg.DownloadDir,
			Token:  appCfg.AuthToken,
		}),
	)
	if appCfg.UseNotify {
		c.OnNotification(notify.Forwarder(appCfg.NotifySocket))
	}
	return c
}
