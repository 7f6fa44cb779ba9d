// Handles the "srkstore blob" command. This command exists solely to contain
// the client subcommands (e.g. read, write, presign, etc..)

package cmd

import (
	"github.com/spf13/cobra"
)

var blobCmdConfig struct {
	bucket string
}

// blobCmd represents the blob command
var blobCmd = &cobra.Command{
	Use:               "blob",
	Short:             "Object storage interaction",
	Long:              `Commands for reading and writing blobs through a running storage server.`,
	PersistentPreRunE: clientPreRun,
}

func init() {
	rootCmd.AddCommand(blobCmd)

	blobCmd.PersistentFlags().StringVarP(&blobCmdConfig.bucket, "bucket", "b", "", "logical bucket name")
	blobCmd.MarkPersistentFlagRequired("bucket")
}
