// Handles the "srkstore blob list" command

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var blobListPrefix string

var blobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blobs",
	Long:  `Print the keys of every blob in the bucket that starts with the given prefix.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := getClient()
		if err != nil {
			return err
		}
		defer client.Close()

		keys, err := client.Bucket(blobCmdConfig.bucket).List(context.Background(), blobListPrefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

func init() {
	blobCmd.AddCommand(blobListCmd)

	blobListCmd.Flags().StringVarP(&blobListPrefix, "prefix", "p", "", "only list keys with this prefix")
}
