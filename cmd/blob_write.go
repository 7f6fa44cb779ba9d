// Handles the "srkstore blob write" command

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var blobWriteCmdConfig struct {
	key  string
	file string
}

var blobWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a blob",
	Long: `Write the contents of a file, or of stdin when no file is given, to a blob.
Any existing blob with the same key is replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if blobWriteCmdConfig.file == "" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(blobWriteCmdConfig.file)
		}
		if err != nil {
			return errors.Wrap(err, "Failed to read input")
		}

		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Bucket(blobCmdConfig.bucket).Write(context.Background(), blobWriteCmdConfig.key, data); err != nil {
			return err
		}
		srkManager.Logger.Infof("Wrote %d bytes to %s", len(data), blobWriteCmdConfig.key)
		return nil
	},
}

func init() {
	blobCmd.AddCommand(blobWriteCmd)

	blobWriteCmd.Flags().StringVarP(&blobWriteCmdConfig.key, "key", "k", "", "key of the blob")
	blobWriteCmd.Flags().StringVarP(&blobWriteCmdConfig.file, "file", "f", "", "file to upload")
	blobWriteCmd.MarkFlagRequired("key")
}
