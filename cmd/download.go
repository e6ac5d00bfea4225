package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moyoez/bigtransfer-go/types"
)

func newDownloadCmd() *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "download <access-id> [filename]",
		Short: "Prepare a batch, one of its files, or a file record and save it locally",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := types.DownloadTarget{AccessID: args[0]}
			if len(args) == 2 {
				target.Filename = args[1]
				target.Kind = types.DownloadSingle
			}
			if record {
				if target.Filename != "" {
					return errors.New("--record takes no filename")
				}
				target.Kind = types.DownloadRecord
			}

			ctrl := newController()
			defer ctrl.Close()

			bar := newProgressRenderer(cmd.ErrOrStderr(), "Preparing")
			ctrl.Subscribe(func(v types.TransferView) {
				if v.Download != nil && v.Download.State == types.DownloadPreparing {
					bar.Update(v.Download.Progress)
				}
			})

			ctx := cmd.Context()
			if _, err := ctrl.RequestDownload(ctx, target); err != nil {
				return err
			}
			stop := context.AfterFunc(ctx, ctrl.Close)
			defer stop()

			prep, err := ctrl.WaitDownload(context.Background())
			bar.Finish(err == nil && prep != nil && prep.SavedPath != "")
			if ctx.Err() != nil {
				return errors.New("download cancelled")
			}
			if err != nil {
				return fmt.Errorf("download failed: %s", ctrl.Status().Message)
			}
			if prep == nil || prep.SavedPath == "" {
				return errors.New("download cancelled")
			}
			fmt.Fprintln(cmd.OutOrStdout(), prep.SavedPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "Treat the access id as a standalone file record")
	return cmd
}
