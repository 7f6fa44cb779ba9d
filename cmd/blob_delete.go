// Handles the "srkstore blob delete" command

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var blobDeleteKey string

var blobDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a blob",
	Long:  `Delete a blob. Deleting a blob that does not exist is not an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Bucket(blobCmdConfig.bucket).Delete(context.Background(), blobDeleteKey); err != nil {
			return err
		}
		srkManager.Logger.Info("Successfully deleted " + blobDeleteKey)
		return nil
	},
}

func init() {
	blobCmd.AddCommand(blobDeleteCmd)

	blobDeleteCmd.Flags().StringVarP(&blobDeleteKey, "key", "k", "", "key of the blob")
	blobDeleteCmd.MarkFlagRequired("key")
}
