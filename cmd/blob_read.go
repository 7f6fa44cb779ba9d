// Handles the "srkstore blob read" command

package cmd

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var blobReadCmdConfig struct {
	key  string
	file string
}

var blobReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a blob",
	Long:  `Read a blob and write it to a file, or to stdout when no file is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		data, err := client.Bucket(blobCmdConfig.bucket).Read(context.Background(), blobReadCmdConfig.key)
		if err != nil {
			return err
		}

		if blobReadCmdConfig.file == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(blobReadCmdConfig.file, data, 0644); err != nil {
			return errors.Wrap(err, "Failed to save blob")
		}
		srkManager.Logger.Infof("Saved %d bytes to %s", len(data), blobReadCmdConfig.file)
		return nil
	},
}

func init() {
	blobCmd.AddCommand(blobReadCmd)

	blobReadCmd.Flags().StringVarP(&blobReadCmdConfig.key, "key", "k", "", "key of the blob")
	blobReadCmd.Flags().StringVarP(&blobReadCmdConfig.file, "file", "f", "", "where to save the blob")
	blobReadCmd.MarkFlagRequired("key")
}
