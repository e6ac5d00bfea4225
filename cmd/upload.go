package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/moyoez/bigtransfer-go/progress"
	"github.com/moyoez/bigtransfer-go/selection"
	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

func newUploadCmd() *cobra.Command {
	var (
		qrPath string
		qrSize int
	)
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files and folders as one batch and print its share link",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := newController()
			defer ctrl.Close()

			entries, err := selection.CollectPaths(args)
			if err != nil {
				return err
			}
			result, err := ctrl.AddItems(entries, false)
			if err != nil {
				return err
			}
			if result.Advisory != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), result.Advisory)
			}
			if len(result.Added) == 0 {
				return errors.New("nothing to upload")
			}
			tool.DefaultLogger.Infof("[Upload] %d item(s), %s", ctrl.Selection().Len(), progress.FormatBytes(ctrl.Selection().TotalBytes()))

			bar := newProgressRenderer(cmd.ErrOrStderr(), "Uploading")
			ctrl.Subscribe(func(v types.TransferView) {
				if v.Upload != nil && v.Upload.State == types.UploadStreaming {
					bar.Update(v.Upload.Progress)
				}
			})

			ctx := cmd.Context()
			if err := ctrl.StartUpload(ctx); err != nil {
				return err
			}
			stop := context.AfterFunc(ctx, func() { ctrl.CancelUpload() })
			defer stop()

			session, err := ctrl.WaitUpload(context.Background())
			bar.Finish(err == nil && session.State == types.UploadCompleted)
			if err != nil {
				return fmt.Errorf("upload failed: %s", ctrl.Status().Message)
			}
			if session.State != types.UploadCompleted {
				return errors.New("upload cancelled")
			}

			fmt.Fprintln(cmd.OutOrStdout(), session.ShareLink)
			if qrPath != "" {
				if err := qrcode.WriteFile(session.ShareLink, qrcode.Medium, qrSize, qrPath); err != nil {
					return fmt.Errorf("failed to write QR code: %v", err)
				}
				tool.DefaultLogger.Infof("[Upload] QR code written to %s", qrPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&qrPath, "qr", "", "Also write the share link as a PNG QR code to this path")
	cmd.Flags().IntVar(&qrSize, "qr-size", 256, "QR code size in pixels")
	return cmd
}
