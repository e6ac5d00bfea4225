package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/moyoez/bigtransfer-go/progress"
	"github.com/moyoez/bigtransfer-go/share"
	"github.com/moyoez/bigtransfer-go/tool"
)

func newDetailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details <access-id>",
		Short: "Show the files stored in a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batches := share.NewBatchCache(appCfg.Origin, tool.GetHttpClient(), 0)
			details, err := batches.Get(cmd.Context(), args[0], appCfg.AuthToken)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := details.BatchName
			if name == "" {
				name = details.AccessID
			}
			fmt.Fprintf(out, "%s (%d file(s), %s)\n", name, len(details.Files), progress.FormatBytes(details.TotalSizeBytes))
			if details.UploadedAt != "" {
				fmt.Fprintf(out, "Uploaded %s\n", details.UploadedAt)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, f := range details.Files {
				fmt.Fprintf(w, "  %s\t%s\n", f.Filename, progress.FormatBytes(f.SizeBytes))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out, tool.BuildShareLink(appCfg.Origin, details.AccessID))
			return nil
		},
	}
}
