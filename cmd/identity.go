package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moyoez/bigtransfer-go/tool"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect or reset the anonymous upload id",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the anonymous id, generating one if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := tool.NewAnonymousStore(appCfg.AnonymousIDPath).Get()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the anonymous id; the next anonymous upload gets a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tool.NewAnonymousStore(appCfg.AnonymousIDPath).Clear(); err != nil {
				return err
			}
			tool.DefaultLogger.Infof("[Identity] Anonymous id cleared")
			return nil
		},
	})
	return cmd
}
